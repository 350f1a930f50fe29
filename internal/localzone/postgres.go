// Package localzone loads operator-configured "local zone" records — the
// pdnsd rr/name equivalent of a hosts-file override that always answers
// authoritatively regardless of what upstream says — from PostgreSQL and
// seeds them into the resolver's cache at startup. Grounded on the
// teacher's PostgresRepository (internal/adapters/repository/postgres.go):
// same plain database/sql query/scan shape, opened here through
// jackc/pgx/v5's stdlib driver rather than lib/pq.
package localzone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/mkowalski/recurdns/internal/dns/cache"
	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// Record is one configured local-zone row.
type Record struct {
	ID      string
	Name    string
	Type    string
	Content string
	TTL     int
}

// Repository reads and writes local_records rows.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an already-opened database handle. Callers obtain
// db via sql.Open("pgx", connString), which registers jackc/pgx/v5/stdlib
// as the driver.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListRecords returns every configured local-zone record.
func (r *Repository) ListRecords(ctx context.Context) ([]Record, error) {
	query := `SELECT id, name, type, content, ttl FROM local_records`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			slog.Default().Warn("localzone: failed to close rows", "error", errClose)
		}
	}()

	var out []Record
	for rows.Next() {
		var rec Record
		if errScan := rows.Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Content, &rec.TTL); errScan != nil {
			return nil, errScan
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateRecord inserts a new local-zone record, assigning it a fresh ID if
// the caller didn't already set one (the teacher's DNSService does the
// same for every record/zone it creates, in internal/core/services/dns_service.go).
func (r *Repository) CreateRecord(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `INSERT INTO local_records (id, name, type, content, ttl) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Name, rec.Type, rec.Content, rec.TTL)
	return err
}

// DeleteRecord removes a local-zone record by ID.
func (r *Repository) DeleteRecord(ctx context.Context, id string) error {
	query := `DELETE FROM local_records WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ErrUnsupportedType is returned for a local-zone row whose type this
// loader doesn't know how to seed into the cache.
var ErrUnsupportedType = errors.New("localzone: unsupported record type")

// Seed loads every local-zone record into c, flagged
// FlagLocal|FlagAuth|FlagNoPurge so the resolver treats it as an
// authoritative answer that never expires from the LRU purge, matching pdnsd's "local" record semantics (spec
// §4.2's LOCAL/AUTH domain flags, ported in internal/dns/cache/flags.go).
func Seed(ctx context.Context, repo *Repository, c *cache.Cache, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	records, err := repo.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("localzone: list records: %w", err)
	}

	now := time.Now()
	for _, rec := range records {
		name, err := packet.NewName(rec.Name)
		if err != nil {
			log.Warn("localzone: skipping record with invalid name", "name", rec.Name, "error", err)
			continue
		}
		rr, typ, err := toRR(name, rec)
		if err != nil {
			log.Warn("localzone: skipping unsupported record", "name", rec.Name, "type", rec.Type, "error", err)
			continue
		}
		flags := cache.FlagLocal | cache.FlagAuth | cache.FlagNoPurge
		ttl := time.Duration(rec.TTL) * time.Second
		c.AddRRSet(name, typ, []packet.RR{rr}, ttl, 0, 0, flags, now)
		c.SetFlags(name, cache.DomainLocal|cache.DomainAuth)
	}
	log.Info("localzone: seeded records", "count", len(records))
	return nil
}

func toRR(name packet.Name, rec Record) (packet.RR, packet.Type, error) {
	ttl := uint32(rec.TTL)
	switch rec.Type {
	case "A":
		ip := net.ParseIP(rec.Content).To4()
		if ip == nil {
			return packet.RR{}, 0, fmt.Errorf("%w: invalid A content %q", ErrUnsupportedType, rec.Content)
		}
		return packet.RR{Name: name, Type: packet.TypeA, Class: packet.ClassIN, TTL: ttl, Data: &packet.AData{Addr: ip}}, packet.TypeA, nil
	case "AAAA":
		ip := net.ParseIP(rec.Content)
		if ip == nil || ip.To4() != nil {
			return packet.RR{}, 0, fmt.Errorf("%w: invalid AAAA content %q", ErrUnsupportedType, rec.Content)
		}
		return packet.RR{Name: name, Type: packet.TypeAAAA, Class: packet.ClassIN, TTL: ttl, Data: &packet.AAAAData{Addr: ip}}, packet.TypeAAAA, nil
	case "CNAME":
		target, err := packet.NewName(rec.Content)
		if err != nil {
			return packet.RR{}, 0, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return packet.RR{Name: name, Type: packet.TypeCNAME, Class: packet.ClassIN, TTL: ttl, Data: &packet.NameData{Target: target}}, packet.TypeCNAME, nil
	case "PTR":
		target, err := packet.NewName(rec.Content)
		if err != nil {
			return packet.RR{}, 0, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return packet.RR{Name: name, Type: packet.TypePTR, Class: packet.ClassIN, TTL: ttl, Data: &packet.NameData{Target: target}}, packet.TypePTR, nil
	case "TXT":
		return packet.RR{Name: name, Type: packet.TypeTXT, Class: packet.ClassIN, TTL: ttl, Data: &packet.TXTData{Strings: [][]byte{[]byte(rec.Content)}}}, packet.TypeTXT, nil
	default:
		return packet.RR{}, 0, fmt.Errorf("%w: %s", ErrUnsupportedType, rec.Type)
	}
}
