package proposals

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/vintaratours/proposals-backend/pkg/models"
)

// Proposal numbers are PRO-<year>-NNNN, restarting at 0001 each calendar
// year. Allocation happens inside the caller's transaction and is backed by
// the unique index on number: two transactions can read the same max, but
// only one insert commits; the loser is retried by withAllocationRetry with
// fresh reads.

const numberPrefix = "PRO"

// nextProposalNumber returns the next free number for the given year.
func nextProposalNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", numberPrefix, now.Year())

	var numbers []string
	if err := tx.Model(&models.Proposal{}).
		Where("number LIKE ?", prefix+"%").
		Pluck("number", &numbers).Error; err != nil {
		return "", err
	}

	max := 0
	for _, n := range numbers {
		seq, err := strconv.Atoi(strings.TrimPrefix(n, prefix))
		if err != nil {
			continue // foreign-looking numbers don't participate
		}
		if seq > max {
			max = seq
		}
	}
	return fmt.Sprintf("%s%04d", prefix, max+1), nil
}

// allocRetries bounds how often a creation transaction is replayed after a
// duplicated-key error on the number or version indexes.
const allocRetries = 3

// withAllocationRetry runs fn in a transaction and replays it, fresh reads
// included, when the commit lost an identifier race. Anything else rolls
// back and propagates unchanged.
func withAllocationRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < allocRetries; attempt++ {
		err = db.Transaction(fn)
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return fiber.NewError(fiber.StatusConflict, "could not allocate a proposal identifier, please retry")
}
