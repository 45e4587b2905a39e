package local

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"invoicing-backend/internal/shared/server/respond"
	"invoicing-backend/internal/shared/storage/object"
)

// DownloadPath is the route prefix that serves signed downloads.
const DownloadPath = "/api/v1/artifacts"

var (
	// ErrBadSignature is returned for a missing or forged link signature.
	ErrBadSignature = errors.New("invalid link signature")

	// ErrLinkExpired is returned for a link past its expiry.
	ErrLinkExpired = errors.New("link expired")
)

// Store implements ArtifactStore on the local filesystem. Its signed links
// point back at this service and are verified with an HMAC.
type Store struct {
	baseDir string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// New creates a local store rooted at baseDir. Links are issued under
// publicBaseURL; an empty secret gets a random per-process key, so links do
// not survive a restart.
func New(baseDir, publicBaseURL, secret string) *Store {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
		}
	}
	return &Store{
		baseDir: baseDir,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		secret:  key,
		now:     time.Now,
	}
}

func (s *Store) path(key string) (string, string, error) {
	clean, err := object.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return clean, filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}

// Put writes r to key. The write goes to a temp file first so concurrent
// writers of the same key never expose a partial artifact.
func (s *Store) Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, fullPath, err := s.path(key)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		return 0, fmt.Errorf("rename: %w", err)
	}
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		if err := os.WriteFile(typePath(fullPath), []byte(contentType), 0o644); err != nil {
			return 0, fmt.Errorf("write content type: %w", err)
		}
	}
	return written, nil
}

// typePath names the hidden sidecar holding an object's content type.
func typePath(fullPath string) string {
	return filepath.Join(filepath.Dir(fullPath), ".type-"+filepath.Base(fullPath))
}

// ContentType returns the type recorded by Put, falling back to the key's
// extension.
func (s *Store) ContentType(key string) string {
	_, fullPath, err := s.path(key)
	if err == nil {
		if raw, err := os.ReadFile(typePath(fullPath)); err == nil {
			if ct := strings.TrimSpace(string(raw)); ct != "" {
				return ct
			}
		}
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, object.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SignedURL returns an expiring download link for an existing object.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, fullPath, err := s.path(key)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(fullPath)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", object.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("stat: %w", err)
	}

	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.signature(clean, expires))
	return s.baseURL + DownloadPath + "/" + escapeKey(clean) + "?" + q.Encode(), nil
}

// Verify checks a link signature for key.
func (s *Store) Verify(key, expires, sig string) error {
	clean, err := object.CleanKey(key)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || sig == "" {
		return ErrBadSignature
	}
	if !hmac.Equal([]byte(sig), []byte(s.signature(clean, exp))) {
		return ErrBadSignature
	}
	if s.now().Unix() > exp {
		return ErrLinkExpired
	}
	return nil
}

// RegisterRoutes serves signed downloads on a public group mounted at /api/v1.
func (s *Store) RegisterRoutes(public *gin.RouterGroup) {
	public.GET("/artifacts/*key", s.download)
}

func (s *Store) download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if err := s.Verify(key, c.Query("expires"), c.Query("sig")); err != nil {
		respond.Error(c, http.StatusForbidden, "forbidden", err.Error(), nil)
		return
	}
	rc, err := s.Open(c.Request.Context(), key)
	if errors.Is(err, object.ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "artifact not found", nil)
		return
	}
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open artifact", nil)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(key)))
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, -1, s.ContentType(key), rc, nil)
}

func (s *Store) signature(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ object.ArtifactStore = (*Store)(nil)
