package cml

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const (
	xmlContentType  = "application/xml; charset=utf-8"
	zipContentType  = "application/zip"
	jpegContentType = "image/jpeg"

	importFilename  = "import.xml"
	offersFilename  = "offers.xml"
	archiveFilename = "stock.zip"
)

var (
	reFileLimit = regexp.MustCompile(`(?m)^\s*file_limit\s*=\s*(\d+)\s*$`)
	reZip       = regexp.MustCompile(`(?m)^\s*zip\s*=\s*yes\s*$`)
)

// Client owns the connection pool shared by all exchange sessions. Safe for
// concurrent use; individual sessions are not.
type Client struct {
	log       zerolog.Logger
	http      *http.Client
	debugPath string

	// poll policy; overridable in tests
	pollBaseDelay   time.Duration
	maxPollAttempts int
}

// NewClient creates an exchange client. debugPath, when non-empty, enables
// mirroring of transferred documents for diagnostics.
func NewClient(log zerolog.Logger, debugPath string) *Client {
	return &Client{
		log:             log,
		http:            &http.Client{Timeout: 60 * time.Second},
		debugPath:       debugPath,
		pollBaseDelay:   time.Second,
		maxPollAttempts: 100,
	}
}

// Session scopes the handshake to one endpoint and credential pair. A
// session serializes its own steps and must not be used concurrently.
type Session struct {
	c        *Client
	url      *url.URL
	login    string
	password string
	log      zerolog.Logger
	debug    *debugSaver

	params    url.Values // merged into every request after checkauth
	zipMode   bool
	fileLimit int
}

func (c *Client) Session(rawURL, login, password string) (*Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cml: endpoint url: %w", err)
	}
	log := c.log.With().Str("endpoint", u.Host).Logger()
	return &Session{
		c:        c,
		url:      u,
		login:    login,
		password: password,
		log:      log,
		debug:    newDebugSaver(log, c.debugPath),
		params:   url.Values{"type": {"catalog"}},
	}, nil
}

// request runs one handshake step and returns the body decoded to UTF-8
// (1C endpoints frequently answer in windows-1251).
func (s *Session) request(ctx context.Context, method string, extra url.Values, body []byte, contentType string, basicAuth bool) (string, error) {
	u := *s.url
	q := u.Query()
	for key, vals := range s.params {
		q[key] = vals
	}
	for key, vals := range extra {
		q[key] = vals
	}
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if basicAuth {
		req.SetBasicAuth(s.login, s.password)
	}

	resp, err := s.c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("cml %s: %w", extra.Get("mode"), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cml %s: unexpected status %s", extra.Get("mode"), resp.Status)
	}
	decoded, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		decoded = resp.Body
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("cml %s: %w", extra.Get("mode"), err)
	}
	return string(data), nil
}

// CheckAuth authenticates with Basic auth and captures the sessid the
// server may hand out on the 4th response line.
func (s *Session) CheckAuth(ctx context.Context) error {
	s.log.Info().Str("login", s.login).Msg("cml: checkauth")
	body, err := s.request(ctx, http.MethodGet, url.Values{"mode": {"checkauth"}}, nil, "", true)
	if err != nil {
		return err
	}
	lines := splitLines(body)
	s.log.Info().Strs("response", lines).Msg("cml: checkauth response")
	if len(lines) == 0 || strings.HasPrefix(lines[0], "failure") {
		detail := ""
		if len(lines) > 1 {
			detail = strings.Join(lines[1:], "\n")
		}
		return &AuthError{Detail: detail}
	}
	if len(lines) >= 4 && strings.HasPrefix(lines[3], "sessid=") {
		s.params.Set("sessid", strings.TrimPrefix(lines[3], "sessid="))
	}
	return nil
}

// Init negotiates the transfer mode: archive bundling (zip=yes) and chunked
// transfer (file_limit=N). Absent markers mean whole, unbundled files.
func (s *Session) Init(ctx context.Context) error {
	s.log.Info().Msg("cml: init")
	body, err := s.request(ctx, http.MethodGet, url.Values{"mode": {"init"}}, nil, "", false)
	if err != nil {
		return err
	}
	s.log.Info().Str("response", body).Msg("cml: init response")
	s.zipMode = reZip.MatchString(body)
	s.fileLimit = 0
	if m := reFileLimit.FindStringSubmatch(body); m != nil {
		s.fileLimit, _ = strconv.Atoi(m[1])
	}
	return nil
}

func (s *Session) sendFile(ctx context.Context, filename, contentType string, data []byte) error {
	if !strings.HasPrefix(contentType, "image/") {
		s.debug.Save(filename, data)
	}
	if s.fileLimit > 0 {
		for offset, chunkNo := 0, 0; offset < len(data); offset, chunkNo = offset+s.fileLimit, chunkNo+1 {
			end := offset + s.fileLimit
			if end > len(data) {
				end = len(data)
			}
			if err := s.sendChunk(ctx, filename, contentType, data[offset:end], chunkNo); err != nil {
				return err
			}
		}
		return nil
	}
	return s.sendChunk(ctx, filename, contentType, data, 0)
}

func (s *Session) sendChunk(ctx context.Context, filename, contentType string, data []byte, chunkNo int) error {
	s.log.Info().Str("file", filename).Int("chunk", chunkNo).Msg("cml: file")
	body, err := s.request(ctx, http.MethodPost,
		url.Values{"mode": {"file"}, "filename": {filename}}, data, contentType, false)
	if err != nil {
		return err
	}
	result := strings.TrimSpace(body)
	s.log.Info().Str("response", result).Msg("cml: file response")
	if parseStatus(result).kind != statusSuccess {
		return &UploadError{Filename: filename, Detail: result}
	}
	return nil
}

// importPoll triggers the server-side import of filename and polls until a
// terminal status. Backoff grows linearly; the delay is applied on a
// rate-limit marker or when a progress detail repeats, while a changing
// progress detail re-polls immediately.
func (s *Session) importPoll(ctx context.Context, filename string) error {
	s.log.Info().Str("file", filename).Msg("cml: import")
	var prevDetail string
	for attempt := 1; attempt <= s.c.maxPollAttempts; attempt++ {
		body, err := s.request(ctx, http.MethodGet,
			url.Values{"mode": {"import"}, "filename": {filename}}, nil, "", false)
		if err != nil {
			return err
		}
		st := parseStatus(body)
		s.log.Info().Str("response", strings.TrimSpace(body)).Msg("cml: import response")

		delay := time.Duration(attempt) * s.c.pollBaseDelay
		if st.rateLimited() {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			prevDetail = st.detail
			continue
		}
		switch st.kind {
		case statusSuccess:
			return nil
		case statusProgress:
			if st.detail == prevDetail {
				if err := sleep(ctx, delay); err != nil {
					return err
				}
			}
			prevDetail = st.detail
			continue
		default:
			return &UploadError{Filename: filename, Detail: st.detail}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrImportTimeout, filename, s.c.maxPollAttempts)
}

// Upload runs the whole handshake for one document set: checkauth, init,
// file transfer (photos, then import.xml, then offers.xml, bundled into
// one archive when the server asks for it), then an import poll per
// logical document. offersDoc and photos may be nil.
func (s *Session) Upload(ctx context.Context, importDoc *ImportDocument, offersDoc *OffersDocument, photos map[string][]byte) error {
	if err := s.CheckAuth(ctx); err != nil {
		return err
	}
	if err := s.Init(ctx); err != nil {
		return err
	}

	var zipBuf bytes.Buffer
	var zipWriter *zip.Writer
	if s.zipMode {
		zipWriter = zip.NewWriter(&zipBuf)
	}

	transfer := func(filename, contentType string, data []byte) error {
		if zipWriter != nil {
			s.log.Info().Str("file", filename).Msg("cml: add file to archive")
			w, err := zipWriter.Create(filename)
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		}
		return s.sendFile(ctx, filename, contentType, data)
	}

	for _, name := range sortedKeys(photos) {
		if err := transfer(name, jpegContentType, photos[name]); err != nil {
			return err
		}
	}

	importXML, err := importDoc.XML()
	if err != nil {
		return err
	}
	if err := transfer(importFilename, xmlContentType, importXML); err != nil {
		return err
	}

	if offersDoc != nil {
		offersXML, err := offersDoc.XML()
		if err != nil {
			return err
		}
		if err := transfer(offersFilename, xmlContentType, offersXML); err != nil {
			return err
		}
	}

	if zipWriter != nil {
		if err := zipWriter.Close(); err != nil {
			return err
		}
		if err := s.sendFile(ctx, archiveFilename, zipContentType, zipBuf.Bytes()); err != nil {
			return err
		}
	}

	if err := s.importPoll(ctx, importFilename); err != nil {
		return err
	}
	if offersDoc != nil {
		if err := s.importPoll(ctx, offersFilename); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(strings.TrimSpace(s), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
