package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/wolfofmycity/vigilaero-platform/pkg/artifacts"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/scoring"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
	"github.com/wolfofmycity/vigilaero-platform/pkg/readiness"
)

// ErrHashMismatch is returned by Verify when a package was altered.
var ErrHashMismatch = errors.New("audit package content hash mismatch")

// PackageFramework pins the catalog revision a package was scored against.
type PackageFramework struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	CatalogHash string `json:"catalog_hash"`
}

// AuditPackage is a self-describing export of one readiness snapshot.
type AuditPackage struct {
	PackageID   string                   `json:"package_id"`
	GeneratedAt string                   `json:"generated_at"`
	Framework   PackageFramework         `json:"framework"`
	Query       evidence.Query           `json:"query"`
	Degraded    bool                     `json:"degraded"`
	Summary     scoring.FrameworkSummary `json:"summary"`
	Controls    []scoring.ControlView    `json:"controls"`
	// ContentHash covers every other field in JCS canonical form.
	ContentHash string `json:"content_hash,omitempty"`
}

// Builder assembles audit packages.
type Builder struct {
	registry *catalog.Registry
	clock    func() time.Time
	newID    func() string
}

// NewBuilder creates a builder resolving catalogs from registry.
func NewBuilder(registry *catalog.Registry) *Builder {
	return &Builder{
		registry: registry,
		clock:    time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// WithClock overrides clock for testing.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithIDs overrides package id generation for testing.
func (b *Builder) WithIDs(newID func() string) *Builder {
	b.newID = newID
	return b
}

// Build packages snap and seals it with its content hash.
func (b *Builder) Build(snap readiness.Snapshot) (*AuditPackage, error) {
	f, ok := b.registry.Framework(snap.Framework.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", readiness.ErrUnknownFramework, snap.Framework.ID)
	}
	catalogHash, err := catalog.ContentHash(f)
	if err != nil {
		return nil, err
	}

	pkg := &AuditPackage{
		PackageID:   b.newID(),
		GeneratedAt: b.clock().UTC().Format(time.RFC3339),
		Framework: PackageFramework{
			ID:          f.ID,
			Name:        f.Name,
			Version:     f.Version,
			CatalogHash: catalogHash,
		},
		Query:    snap.Query,
		Degraded: snap.Degraded,
		Summary:  snap.Summary,
		Controls: snap.Controls,
	}
	hash, err := contentHash(pkg)
	if err != nil {
		return nil, err
	}
	pkg.ContentHash = hash
	return pkg, nil
}

func contentHash(pkg *AuditPackage) (string, error) {
	unsealed := *pkg
	unsealed.ContentHash = ""
	canonical, err := canonicalJSON(&unsealed)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(pkg *AuditPackage) ([]byte, error) {
	raw, err := json.Marshal(pkg)
	if err != nil {
		return nil, fmt.Errorf("marshal audit package: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize audit package: %w", err)
	}
	return canonical, nil
}

// Verify recomputes the content hash.
func Verify(pkg *AuditPackage) error {
	want, err := contentHash(pkg)
	if err != nil {
		return err
	}
	if want != pkg.ContentHash {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrHashMismatch, pkg.ContentHash, want)
	}
	return nil
}

// Marshal returns the package in canonical JSON.
func Marshal(pkg *AuditPackage) ([]byte, error) {
	return canonicalJSON(pkg)
}

// Unmarshal parses a package and verifies its hash.
func Unmarshal(data []byte) (*AuditPackage, error) {
	var pkg AuditPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse audit package: %w", err)
	}
	if err := Verify(&pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Publish stores the canonical package bytes and returns the artifact ref.
func Publish(ctx context.Context, store artifacts.Store, pkg *AuditPackage) (string, error) {
	data, err := Marshal(pkg)
	if err != nil {
		return "", err
	}
	return store.Put(ctx, data)
}

// Filename is the download name for a package generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("VigilAero-Compliance-Report-%s.json", t.UTC().Format(evidence.DateLayout))
}
