package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// BitwardenProvider resolves credentials through the Bitwarden CLI. The
// reference is an item id or name passed to `bw get item`.
type BitwardenProvider struct {
	// Bin overrides the bw binary path. Empty means "bw" from PATH.
	Bin string
}

const (
	bwStatusTimeout = 10 * time.Second
	bwGetTimeout    = 20 * time.Second
)

type bwStatus struct {
	Status string `json:"status"`
}

type bwItem struct {
	Login struct {
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"login"`
}

// Resolve implements Provider.
func (p *BitwardenProvider) Resolve(reference string) (Credentials, error) {
	bin := p.Bin
	if bin == "" {
		bin = "bw"
	}

	// When BW_SESSION is set, skip the status gate entirely: some
	// installations report "locked" even with a valid session token.
	if os.Getenv("BW_SESSION") == "" {
		if err := p.checkStatus(bin); err != nil {
			return Credentials{}, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), bwGetTimeout)
	defer cancel()

	out, err := runBW(ctx, bin, "get", "item", reference)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.ToLower(strings.TrimSpace(string(exitErr.Stderr)))
			if strings.Contains(msg, "locked") || strings.Contains(msg, "unlock") || strings.Contains(msg, "session") {
				return Credentials{}, fmt.Errorf("%w: run `bw unlock --raw` and set BW_SESSION", ErrLocked)
			}
			if strings.Contains(msg, "not found") {
				return Credentials{}, fmt.Errorf("%w: bitwarden item %q", ErrNotFound, reference)
			}
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Credentials{}, fmt.Errorf("%w: bitwarden CLI timed out, likely waiting for unlock", ErrLocked)
		}
		return Credentials{}, fmt.Errorf("bw get item: %w", err)
	}

	var item bwItem
	if err := json.Unmarshal(out, &item); err != nil {
		return Credentials{}, fmt.Errorf("decode bw item: %w", err)
	}
	username := strings.TrimSpace(item.Login.Username)
	password := strings.TrimSpace(item.Login.Password)
	if username == "" || password == "" {
		return Credentials{}, fmt.Errorf("%w: bitwarden item %q has no login username/password", ErrNotFound, reference)
	}
	return Credentials{Username: username, Password: password}, nil
}

func (p *BitwardenProvider) checkStatus(bin string) error {
	ctx, cancel := context.WithTimeout(context.Background(), bwStatusTimeout)
	defer cancel()

	out, err := runBW(ctx, bin, "status")
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: `bw status` timed out", ErrLocked)
		}
		return fmt.Errorf("bw status: %w", err)
	}

	var st bwStatus
	if err := json.Unmarshal(out, &st); err != nil {
		// Older bw versions may not emit JSON; proceed and rely on the
		// get-item timeout instead.
		return nil
	}
	switch strings.ToLower(st.Status) {
	case "locked", "unauthenticated":
		return fmt.Errorf("%w: bitwarden status is %q", ErrLocked, st.Status)
	}
	return nil
}

func runBW(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitErr.Stderr = stderr.Bytes()
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
