// Package source supplies raw proxy candidates: it reads a list of source
// URLs from a file and downloads each source's plain-text proxy list.
// Per-source failures are logged and skipped; only the URL file itself is
// load-bearing.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	fetchTimeout  = 30 * time.Second
	maxBodyBytes  = 8 << 20
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	exampleHeader = `# SOCKS5 proxy list sources
# One HTTP/HTTPS URL per line.

https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks5.txt
https://raw.githubusercontent.com/hookzof/socks5_list/master/proxy.txt
https://api.proxyscrape.com/v2/?request=displayproxies&protocol=socks5
`
)

// Supplier fetches candidate lists over HTTP, pacing requests so source
// hosts are not hammered.
type Supplier struct {
	Client  *http.Client
	Limiter *rate.Limiter
}

// New returns a Supplier with the production client and one request per
// second pacing between sources.
func New() *Supplier {
	return &Supplier{
		Client:  &http.Client{Timeout: fetchTimeout},
		Limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// ReadURLFile loads source URLs from path, skipping blanks, comments and
// non-HTTP lines. A missing file is seeded with a commented example and
// reported as having no sources.
func (s *Supplier) ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.Warnf("source file %s missing, writing example", path)
		if werr := os.WriteFile(path, []byte(exampleHeader), 0o644); werr != nil {
			return nil, fmt.Errorf("write example url file: %w", werr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "http://") && !strings.HasPrefix(line, "https://") {
			log.Warnf("skipping invalid source url: %s", line)
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan url file: %w", err)
	}
	return urls, nil
}

// FetchAll downloads every source and returns the concatenated raw
// candidate lines. Failed sources contribute nothing.
func (s *Supplier) FetchAll(ctx context.Context, urls []string) []string {
	var all []string
	for _, u := range urls {
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return all
			}
		}
		lines, err := s.fetchOne(ctx, u)
		if err != nil {
			log.Warnf("fetch %s: %v", u, err)
			continue
		}
		log.Infof("fetched %d candidates from %s", len(lines), u)
		all = append(all, lines...)
	}
	return all
}

func (s *Supplier) fetchOne(ctx context.Context, u string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return SplitCandidates(string(body)), nil
}

// SplitCandidates breaks a raw payload into trimmed candidate lines,
// dropping blanks and comments.
func SplitCandidates(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// ReadProxyFile loads raw candidates from a local file, one per line, in
// the same blank/comment-skipping format the sources use.
func ReadProxyFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan proxy file: %w", err)
	}
	return out, nil
}
