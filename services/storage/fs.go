package storagesvc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/evodigital/academia/core"
)

const mediaURLPrefix = "/media"

// fileSystemStore keeps blobs on local disk under <root>/<bucket>/<path>.
// Private buckets are served through HMAC-signed, expiring URLs.
type fileSystemStore struct {
	root   string
	secret []byte
}

var _ core.FileStore = (*fileSystemStore)(nil)

func NewFileSystemStore(conf *core.Config) (core.FileStore, error) {
	if err := os.MkdirAll(conf.Media.Root, 0755); err != nil {
		return nil, errors.Wrap(err, "creating media root")
	}
	return &fileSystemStore{root: conf.Media.Root, secret: conf.SecretKey}, nil
}

func (s *fileSystemStore) Save(bucket, pathHint, ext string, r io.Reader) (string, error) {
	name := cleanHint(pathHint) + "-" + uuid.New().String()
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	dir := filepath.Join(s.root, bucket)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "creating bucket dir")
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	defer f.Close()
	if _, err = io.Copy(f, r); err != nil {
		return "", errors.Wrap(err, "writing file")
	}
	return name, nil
}

func (s *fileSystemStore) Open(bucket, pth string) (io.ReadCloser, error) {
	fpath, err := s.resolve(bucket, pth)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fpath)
	if os.IsNotExist(err) {
		return nil, core.ErrFileNotFound
	}
	return f, errors.Wrap(err, "opening file")
}

func (s *fileSystemStore) Delete(bucket, pth string) error {
	fpath, err := s.resolve(bucket, pth)
	if err != nil {
		return err
	}
	if err = os.Remove(fpath); os.IsNotExist(err) {
		return core.ErrFileNotFound
	}
	return errors.Wrap(err, "deleting file")
}

func (s *fileSystemStore) PublicURL(bucket, pth string) string {
	return mediaURLPrefix + "/" + bucket + "/" + pth
}

func (s *fileSystemStore) SignedURL(bucket, pth string, ttl time.Duration, download bool) (string, error) {
	if strings.Contains(pth, "..") {
		return "", core.ErrFileNotFound
	}
	exp := time.Now().Add(ttl).Unix()
	dl := "0"
	if download {
		dl = "1"
	}
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("dl", dl)
	q.Set("sig", s.sign(bucket, pth, exp, dl))
	return s.PublicURL(bucket, pth) + "?" + q.Encode(), nil
}

func (s *fileSystemStore) VerifySignedURL(rawurl string) (bucket, pth string, download bool, err error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", "", false, core.ErrInvalidSignedURL
	}
	rel := strings.TrimPrefix(u.Path, mediaURLPrefix+"/")
	parts := strings.SplitN(rel, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false, core.ErrInvalidSignedURL
	}
	bucket, pth = parts[0], parts[1]

	q := u.Query()
	exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	if err != nil {
		return "", "", false, core.ErrInvalidSignedURL
	}
	dl := q.Get("dl")
	if !hmac.Equal([]byte(q.Get("sig")), []byte(s.sign(bucket, pth, exp, dl))) {
		return "", "", false, core.ErrInvalidSignedURL
	}
	if time.Now().Unix() > exp {
		return "", "", false, core.ErrInvalidSignedURL
	}
	return bucket, pth, dl == "1", nil
}

func (s *fileSystemStore) sign(bucket, pth string, exp int64, dl string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%d|%s", bucket, pth, exp, dl)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *fileSystemStore) resolve(bucket, pth string) (string, error) {
	fpath := filepath.Join(s.root, bucket, filepath.FromSlash(pth))
	// keep lookups inside the bucket
	if !strings.HasPrefix(fpath, filepath.Join(s.root, bucket)+string(os.PathSeparator)) {
		return "", core.ErrFileNotFound
	}
	return fpath, nil
}

func cleanHint(hint string) string {
	hint = path.Base(strings.ToLower(strings.TrimSpace(hint)))
	var b strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return strings.TrimSuffix(b.String(), path.Ext(b.String()))
}
