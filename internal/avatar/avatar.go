// Package avatar assigns a generated default avatar to new accounts.
package avatar

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
)

// Store persists the avatar URL on the account.
type Store interface {
	SetAvatar(ctx context.Context, accountID int64, url string) error
}

var palette = []string{"#1abc9c", "#2ecc71", "#3498db", "#9b59b6", "#e67e22", "#e74c3c", "#34495e", "#16a085"}

// Provisioner writes an initials avatar for an account and records its URL.
type Provisioner struct {
	dir     string
	baseURL string
	store   Store
	timeout time.Duration
	logger  *zap.SugaredLogger
	wg      sync.WaitGroup
}

func NewProvisioner(dir, baseURL string, store Store, logger *zap.SugaredLogger) *Provisioner {
	return &Provisioner{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Assign provisions the avatar in the background. Failures are logged only;
// the account is usable without an avatar.
func (p *Provisioner) Assign(a *entity.Account) {
	snapshot := *a
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if _, err := p.Provision(ctx, &snapshot); err != nil {
			p.logger.Warnw("avatar provisioning failed", "account_id", snapshot.ID, "err", err)
		}
	}()
}

// Wait blocks until background provisioning has finished.
func (p *Provisioner) Wait() {
	p.wg.Wait()
}

// Provision writes the avatar file synchronously and returns its URL.
func (p *Provisioner) Provision(ctx context.Context, a *entity.Account) (string, error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("create avatar dir: %w", err)
	}
	name := uuid.NewString() + ".svg"
	if err := os.WriteFile(filepath.Join(p.dir, name), []byte(render(a)), 0o644); err != nil {
		return "", fmt.Errorf("write avatar: %w", err)
	}
	url := p.baseURL + "/" + name
	if err := p.store.SetAvatar(ctx, a.ID, url); err != nil {
		_ = os.Remove(filepath.Join(p.dir, name))
		return "", fmt.Errorf("store avatar url: %w", err)
	}
	return url, nil
}

func render(a *entity.Account) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(a.SubjectID))
	color := palette[h.Sum32()%uint32(len(palette))]
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="128" height="128" viewBox="0 0 128 128">`+
		`<rect width="128" height="128" fill="%s"/>`+
		`<text x="64" y="64" dy=".35em" text-anchor="middle" font-family="sans-serif" font-size="52" fill="#ffffff">%s</text>`+
		`</svg>`, color, initials(a.Name))
}

// initials returns up to two upper-case initials, or "?" for empty names.
func initials(name string) string {
	var out []rune
	for _, part := range strings.Fields(name) {
		r := []rune(part)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		out = append(out, unicode.ToUpper(r))
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}
