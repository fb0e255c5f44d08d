package main

import (
	"fmt"
)

func (cli *commandLine) approveTeacher(email string) error {
	usr, err := cli.usrSvc.GetByEmail(email)
	if err != nil {
		return err
	}
	if !usr.IsTeacher() {
		return fmt.Errorf("%s is not a teacher account", email)
	}
	// the service notifies the teacher by email on a fresh approval
	_, err = cli.usrSvc.SetApproval(usr.ID, true)
	return err
}
