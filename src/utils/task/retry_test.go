package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

func TestRetryTestSuite(t *testing.T) {
	suite.Run(t, new(RetryTestSuite))
}

type RetryTestSuite struct {
	suite.Suite
}

func (s *RetryTestSuite) TestSucceedsAfterFailures() {
	var calls, notified int
	err := NewRetry().
		WithInitialInterval(time.Millisecond).
		WithMaxInterval(5 * time.Millisecond).
		WithOnError(func(error) { notified++ }).
		Run(func() error {
			calls++
			if calls < 3 {
				return errors.New("fail")
			}
			return nil
		})
	s.Require().NoError(err)
	s.Equal(3, calls)
	s.Equal(2, notified)
}

func (s *RetryTestSuite) TestGivesUp() {
	err := NewRetry().
		WithInitialInterval(time.Millisecond).
		WithMaxElapsedTime(20 * time.Millisecond).
		Run(func() error {
			return errors.New("fail")
		})
	s.Require().Error(err)
}

func (s *RetryTestSuite) TestStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := NewRetry().
		WithContext(ctx).
		WithInitialInterval(time.Millisecond).
		Run(func() error {
			calls++
			return context.Canceled
		})
	s.Require().Error(err)
	s.Equal(1, calls)
}
