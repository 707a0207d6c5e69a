package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zeebo/xxh3"

	"github.com/spec-kit/squad-service/internal/domain"
	apperrors "github.com/spec-kit/squad-service/pkg/util/errorutil"
)

// SQLSTATE codes that mean a concurrent writer won.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore instantiates the pgx-backed store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapConflict(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// mapConflict turns lost races reported by Postgres into AssignmentConflict.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return apperrors.NewAssignmentConflict("concurrent update on "+pgErr.TableName, err)
		}
	}
	return err
}

// AgeGroupLockKey derives the advisory lock key for an age group.
func AgeGroupLockKey(ageGroup domain.AgeGroup) int64 {
	return int64(xxh3.HashString("squad-age-group:" + string(ageGroup)))
}

type pgTx struct {
	tx pgx.Tx
}

const memberColumns = `id, birth_year, primary_position, secondary_position, status, assignment_id, created_at, updated_at`

func (t *pgTx) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	const query = `SELECT ` + memberColumns + ` FROM members WHERE id=$1`
	return t.fetchMember(ctx, query, id)
}

func (t *pgTx) GetMemberForUpdate(ctx context.Context, id string) (*domain.Member, error) {
	const query = `SELECT ` + memberColumns + ` FROM members WHERE id=$1 FOR UPDATE`
	return t.fetchMember(ctx, query, id)
}

func (t *pgTx) fetchMember(ctx context.Context, query, id string) (*domain.Member, error) {
	var m domain.Member
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.BirthYear,
		&m.PrimaryPosition,
		&m.SecondaryPosition,
		&m.Status,
		&m.AssignmentID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (t *pgTx) UpsertMemberProfile(ctx context.Context, member *domain.Member) error {
	const query = `
        INSERT INTO members (id, birth_year, primary_position, secondary_position, status)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET
            birth_year=EXCLUDED.birth_year,
            primary_position=EXCLUDED.primary_position,
            secondary_position=EXCLUDED.secondary_position,
            status=EXCLUDED.status,
            updated_at=NOW()
        RETURNING assignment_id, created_at, updated_at`
	return t.tx.QueryRow(ctx, query,
		member.ID,
		member.BirthYear,
		member.PrimaryPosition,
		member.SecondaryPosition,
		member.Status,
	).Scan(&member.AssignmentID, &member.CreatedAt, &member.UpdatedAt)
}

func (t *pgTx) SetMemberAssignment(ctx context.Context, memberID string, assignmentID *string) error {
	const query = `UPDATE members SET assignment_id=$1, updated_at=NOW() WHERE id=$2`
	return t.execOne(ctx, query, assignmentID, memberID)
}

const squadColumns = `id, age_group, seq, name, state, roster_template, created_at, updated_at, closed_at`

func (t *pgTx) GetSquad(ctx context.Context, id string) (*domain.Squad, error) {
	const query = `SELECT ` + squadColumns + ` FROM squads WHERE id=$1`
	return t.fetchSquad(ctx, query, id)
}

func (t *pgTx) LockSquad(ctx context.Context, id string) (*domain.Squad, error) {
	const query = `SELECT ` + squadColumns + ` FROM squads WHERE id=$1 FOR UPDATE`
	return t.fetchSquad(ctx, query, id)
}

func (t *pgTx) fetchSquad(ctx context.Context, query, id string) (*domain.Squad, error) {
	squad, err := scanSquad(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := t.loadOccupancy(ctx, []*domain.Squad{squad}); err != nil {
		return nil, err
	}
	return squad, nil
}

func (t *pgTx) ListActiveSquads(ctx context.Context, ageGroup domain.AgeGroup) ([]*domain.Squad, error) {
	const query = `SELECT ` + squadColumns + ` FROM squads
        WHERE age_group=$1 AND state <> 'CLOSED'
        ORDER BY seq`
	return t.listSquads(ctx, query, ageGroup)
}

func (t *pgTx) ListSquads(ctx context.Context, ageGroup domain.AgeGroup) ([]*domain.Squad, error) {
	if ageGroup == "" {
		const query = `SELECT ` + squadColumns + ` FROM squads ORDER BY age_group, seq`
		return t.listSquads(ctx, query)
	}
	const query = `SELECT ` + squadColumns + ` FROM squads WHERE age_group=$1 ORDER BY seq`
	return t.listSquads(ctx, query, ageGroup)
}

func (t *pgTx) listSquads(ctx context.Context, query string, args ...any) ([]*domain.Squad, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	squads := make([]*domain.Squad, 0)
	for rows.Next() {
		squad, err := scanSquad(rows)
		if err != nil {
			return nil, err
		}
		squads = append(squads, squad)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := t.loadOccupancy(ctx, squads); err != nil {
		return nil, err
	}
	return squads, nil
}

func (t *pgTx) loadOccupancy(ctx context.Context, squads []*domain.Squad) error {
	if len(squads) == 0 {
		return nil
	}
	ids := make([]string, 0, len(squads))
	byID := make(map[string]*domain.Squad, len(squads))
	for _, s := range squads {
		s.Occupancy = map[domain.PositionCategory]int{}
		ids = append(ids, s.ID)
		byID[s.ID] = s
	}

	const query = `
        SELECT squad_id, category, COUNT(*)
        FROM squad_assignments
        WHERE squad_id = ANY($1)
        GROUP BY squad_id, category`
	rows, err := t.tx.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			squadID  string
			category domain.PositionCategory
			count    int
		)
		if err := rows.Scan(&squadID, &category, &count); err != nil {
			return err
		}
		if s, ok := byID[squadID]; ok {
			s.Occupancy[category] = count
		}
	}
	return rows.Err()
}

func (t *pgTx) LockAgeGroup(ctx context.Context, ageGroup domain.AgeGroup) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, AgeGroupLockKey(ageGroup))
	return err
}

func (t *pgTx) MaxSquadSeq(ctx context.Context, ageGroup domain.AgeGroup) (int, error) {
	var max int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM squads WHERE age_group=$1`, ageGroup).Scan(&max)
	return max, err
}

func (t *pgTx) CreateSquad(ctx context.Context, squad *domain.Squad) error {
	template, err := json.Marshal(squad.Template)
	if err != nil {
		return fmt.Errorf("encode roster template: %w", err)
	}
	const query = `
        INSERT INTO squads (id, age_group, seq, name, state, roster_template)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`
	if err := t.tx.QueryRow(ctx, query,
		squad.ID,
		squad.AgeGroup,
		squad.Seq,
		squad.Name,
		squad.State,
		string(template),
	).Scan(&squad.CreatedAt, &squad.UpdatedAt); err != nil {
		return err
	}
	if squad.Occupancy == nil {
		squad.Occupancy = map[domain.PositionCategory]int{}
	}
	return nil
}

func (t *pgTx) UpdateSquadState(ctx context.Context, id string, state domain.SquadState, at time.Time) error {
	const query = `
        UPDATE squads SET state=$1, updated_at=$2,
            closed_at = CASE WHEN $1 = 'CLOSED' THEN $2 ELSE closed_at END
        WHERE id=$3`
	return t.execOne(ctx, query, state, at, id)
}

func (t *pgTx) DeleteSquad(ctx context.Context, id string) error {
	return t.execOne(ctx, `DELETE FROM squads WHERE id=$1`, id)
}

func (t *pgTx) CreateCommunicationGroup(ctx context.Context, group *domain.CommunicationGroup) error {
	const query = `
        INSERT INTO communication_groups (id, squad_id, name)
        VALUES ($1,$2,$3)
        RETURNING created_at`
	return t.tx.QueryRow(ctx, query, group.ID, group.SquadID, group.Name).Scan(&group.CreatedAt)
}

func (t *pgTx) GetCommunicationGroup(ctx context.Context, squadID string) (*domain.CommunicationGroup, error) {
	const query = `SELECT id, squad_id, name, created_at FROM communication_groups WHERE squad_id=$1`
	var g domain.CommunicationGroup
	if err := t.tx.QueryRow(ctx, query, squadID).Scan(&g.ID, &g.SquadID, &g.Name, &g.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (t *pgTx) DeleteCommunicationGroup(ctx context.Context, squadID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM communication_groups WHERE squad_id=$1`, squadID)
	return err
}

const assignmentColumns = `id, member_id, squad_id, age_group, category, jersey_number, created_at`

func (t *pgTx) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	const query = `
        INSERT INTO squad_assignments (id, member_id, squad_id, age_group, category, jersey_number)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at`
	return t.tx.QueryRow(ctx, query,
		a.ID,
		a.MemberID,
		a.SquadID,
		a.AgeGroup,
		a.Category,
		a.JerseyNumber,
	).Scan(&a.CreatedAt)
}

func (t *pgTx) GetAssignmentByMember(ctx context.Context, memberID string) (*domain.Assignment, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM squad_assignments WHERE member_id=$1`
	var a domain.Assignment
	if err := t.tx.QueryRow(ctx, query, memberID).Scan(
		&a.ID, &a.MemberID, &a.SquadID, &a.AgeGroup, &a.Category, &a.JerseyNumber, &a.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (t *pgTx) ListSquadAssignments(ctx context.Context, squadID string) ([]domain.Assignment, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM squad_assignments WHERE squad_id=$1 ORDER BY jersey_number`
	rows, err := t.tx.Query(ctx, query, squadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Assignment, 0)
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.MemberID, &a.SquadID, &a.AgeGroup, &a.Category, &a.JerseyNumber, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) DeleteAssignment(ctx context.Context, id string) error {
	return t.execOne(ctx, `DELETE FROM squad_assignments WHERE id=$1`, id)
}

func (t *pgTx) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSquad(row pgx.Row) (*domain.Squad, error) {
	var (
		s        domain.Squad
		template []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.AgeGroup,
		&s.Seq,
		&s.Name,
		&s.State,
		&template,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ClosedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(template, &s.Template); err != nil {
		return nil, fmt.Errorf("decode roster template for squad %s: %w", s.ID, err)
	}
	return &s, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
