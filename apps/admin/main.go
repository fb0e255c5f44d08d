package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/user"
	emailsvc "github.com/evodigital/academia/services/email"
	logsvc "github.com/evodigital/academia/services/logger"
	"github.com/evodigital/academia/storage/database"
	sqlxrepos "github.com/evodigital/academia/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// set up services; approvals go through the user service so the
	// notification mail is sent, same as the API path
	rbLogger := logsvc.NewRollbarLogger(logger, conf)
	rbLogger.Enable(!conf.Debug)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, rbLogger)
	}
	usrRepo := sqlxrepos.NewUserRepository(sqlx.NewDb(db, conf.Database.Engine))

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: usrRepo,
		usrSvc:  user.NewService(usrRepo, mailSvc, conf),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
