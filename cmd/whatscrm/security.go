package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"whatscrm/pkg/webhook"
)

// verifySignature checks the X-Hub-Signature-256 header against the
// configured secret and returns the request body. The body is restored
// on the request so handlers can decode it after verification.
func verifySignature(r *http.Request, secretKey string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if secretKey == "" {
		if os.Getenv("WHATSCRM_ENV") == "production" {
			return nil, fmt.Errorf("webhook secret is required in production mode")
		}
		return body, nil
	}

	signatureHeader := r.Header.Get(webhook.SignatureHeader)
	if signatureHeader == "" {
		return nil, fmt.Errorf("missing signature header: %s", webhook.SignatureHeader)
	}

	parts := strings.SplitN(signatureHeader, "=", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "sha256" {
		return nil, fmt.Errorf("invalid signature format in header %s", webhook.SignatureHeader)
	}
	expectedSignatureHex := parts[1]

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	computedSignatureHex := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computedSignatureHex), []byte(expectedSignatureHex)) {
		return nil, fmt.Errorf("signature mismatch")
	}

	return body, nil
}

// RateLimiter enforces a sliding-window request limit per client IP.
// Only allowed requests count toward the window, so a stream of denied
// requests cannot extend a client's lockout.
type RateLimiter struct {
	mu          sync.RWMutex
	requests    map[string][]time.Time
	limit       int
	window      time.Duration
	lastCleanup time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests:    make(map[string][]time.Time),
		limit:       limit,
		window:      window,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request from ip may proceed, recording it
// when it may. A limit of zero or below blocks everything.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.limit <= 0 {
		return false
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	// Periodic full sweep keeps the map from accumulating one entry per
	// client IP ever seen.
	if now.Sub(rl.lastCleanup) > rl.window {
		rl.cleanupLocked(cutoff)
		rl.lastCleanup = now
	}

	timestamps := rl.requests[ip]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[ip] = valid
		return false
	}

	rl.requests[ip] = append(valid, now)
	return true
}

// cleanupLocked drops IPs whose every recorded request has left the
// window. Callers must hold the write lock.
func (rl *RateLimiter) cleanupLocked(cutoff time.Time) {
	for ip, timestamps := range rl.requests {
		keep := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				keep = append(keep, ts)
			}
		}
		if len(keep) == 0 {
			delete(rl.requests, ip)
		} else {
			rl.requests[ip] = keep
		}
	}
}
