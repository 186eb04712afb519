package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHIBPURL = "https://api.pwnedpasswords.com/range/"
	hibpUserAgent  = "wlk-passwordsafe/1.0"
)

// HIBPResult captures whether a password hash suffix was found in the
// HIBP dataset.
type HIBPResult struct {
	Found bool
	Count int
}

// Checker queries the Have I Been Pwned range API using k-anonymity:
// only the first 5 hex characters of SHA-1(password) ever leave the
// machine. The zero value uses the public API with a short timeout.
type Checker struct {
	BaseURL string
	Client  *http.Client
}

func (c *Checker) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultHIBPURL
}

func (c *Checker) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 5 * time.Second}
}

// Check streams the range response ("SUFFIX:COUNT" lines) and matches
// the local hash suffix case-insensitively. A miss is not an error.
func (c *Checker) Check(ctx context.Context, pw string) (HIBPResult, error) {
	var result HIBPResult

	sum := sha1.Sum([]byte(pw))
	hashHex := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix := hashHex[:5]
	suffix := hashHex[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+prefix, nil)
	if err != nil {
		return result, fmt.Errorf("hibp request: %w", err)
	}
	req.Header.Set("User-Agent", hibpUserAgent)

	resp, err := c.client().Do(req)
	if err != nil {
		return result, fmt.Errorf("hibp query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("hibp query: unexpected status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		partIdx := strings.IndexByte(line, ':')
		if partIdx == -1 {
			continue
		}

		lineSuffix := line[:partIdx]
		countStr := strings.TrimSpace(line[partIdx+1:])
		if !strings.EqualFold(lineSuffix, suffix) {
			continue
		}

		count, err := strconv.Atoi(countStr)
		if err != nil {
			return result, fmt.Errorf("hibp parse count: %w", err)
		}

		result.Found = true
		result.Count = count
		return result, nil
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("hibp read response: %w", err)
	}

	return result, nil
}

// CheckBreached queries the public HIBP API with default settings.
func CheckBreached(ctx context.Context, pw string) (HIBPResult, error) {
	var c Checker
	return c.Check(ctx, pw)
}
