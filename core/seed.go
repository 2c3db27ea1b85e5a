package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// SeedOptions controls SeedUsers.
type SeedOptions struct {
	Count       int
	Prefix      string // usernames are Prefix followed by a zero-padded index, e.g. user001
	Password    string
	Role        string
	Iterations  int
	Concurrency int
}

// SeedReport counts the outcome of a seeding run.
type SeedReport struct {
	Created int64
	Skipped int64 // username already existed
	Failed  int64
}

// SeedUsers creates opts.Count accounts using a bounded pool of workers. Existing
// usernames are skipped so the run can be repeated.
func SeedUsers(ctx context.Context, repo UserRepository, opts SeedOptions, logger logrus.FieldLogger) (SeedReport, error) {
	if opts.Count <= 0 {
		return SeedReport{}, errors.New("count must be positive")
	}
	if opts.Password == "" {
		return SeedReport{}, errors.New("password must not be empty")
	}
	if opts.Iterations <= 0 {
		return SeedReport{}, errors.New("iterations must be positive")
	}
	if opts.Prefix == "" {
		opts.Prefix = "user"
	}
	role := DefaultRole
	if opts.Role != "" {
		role = normalizeRole(opts.Role)
	}
	if _, ok := RoleByCode(role); !ok {
		return SeedReport{}, fmt.Errorf("%w: %s", ErrInvalidRole, opts.Role)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	width := max(3, len(fmt.Sprint(opts.Count)))

	jobs := make(chan int)
	var created, skipped, failed atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				username := fmt.Sprintf("%s%0*d", opts.Prefix, width, i)
				hash, err := HashPassword(opts.Password, opts.Iterations)
				if err != nil {
					failed.Add(1)
					logger.WithError(err).WithField("worker", workerID).Error("hash password failed")
					continue
				}
				_, err = repo.Create(ctx, NewUser{
					Username:     username,
					PasswordHash: hash,
					Email:        username + "@example.com",
					Role:         role,
				})
				switch {
				case err == nil:
					created.Add(1)
				case errors.Is(err, ErrUsernameTaken):
					skipped.Add(1)
				default:
					failed.Add(1)
					logger.WithError(err).WithFields(logrus.Fields{"worker": workerID, "username": username}).Error("create user failed")
				}
			}
		}(w + 1)
	}

feed:
	for i := 1; i <= opts.Count; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	report := SeedReport{Created: created.Load(), Skipped: skipped.Load(), Failed: failed.Load()}
	return report, ctx.Err()
}
