package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Prefixed id sequences. The table name is never taken from user input.
var sequences = map[string]string{
	"buses": "BUS",
	"trips": "TRIP",
}

// nextID returns the next prefixed id for table. It must run inside tx: the
// transaction-scoped advisory lock serialises concurrent creators, and the
// highest existing row is read with FOR UPDATE.
func nextID(ctx context.Context, tx pgx.Tx, table string) (string, error) {
	prefix, ok := sequences[table]
	if !ok {
		return "", fmt.Errorf("no id sequence for table %q", table)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", table); err != nil {
		return "", fmt.Errorf("failed to lock %s sequence: %w", table, err)
	}

	var last string
	err := tx.QueryRow(ctx, fmt.Sprintf(
		"SELECT id FROM %s WHERE id LIKE $1 ORDER BY length(id) DESC, id DESC LIMIT 1 FOR UPDATE", table),
		prefix+"%",
	).Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to read last %s id: %w", table, err)
	}

	return formatID(prefix, parseSequence(prefix, last)+1), nil
}

// formatID renders prefix and n with at least three digits: BUS001, BUS1000
func formatID(prefix string, n int) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}

// parseSequence extracts the number of an id such as TRIP042. Unparseable ids count as 0.
func parseSequence(prefix, id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil || !strings.HasPrefix(id, prefix) {
		return 0
	}
	return n
}
