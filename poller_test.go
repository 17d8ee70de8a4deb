package rdserial_test

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hootrhino/rdserial"
)

var errPoll = errors.New("bad response")

var _ = Describe("Poller", func() {
	var ctx context.Context
	var cancel context.CancelFunc

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
	})
	AfterEach(func() {
		cancel()
	})

	Context("one-shot", func() {
		It("polls exactly once", func() {
			calls := 0
			p := rdserial.NewPoller(rdserial.OneShot(), rdserial.LogAndContinue)
			Expect(p.Run(ctx, func(context.Context) error {
				calls++
				return nil
			})).To(Succeed())
			Expect(calls).To(Equal(1))
			Expect(p.Polls()).To(BeEquivalentTo(1))
		})

		It("returns the error even when continuing is allowed", func() {
			p := rdserial.NewPoller(rdserial.OneShot(), rdserial.LogAndContinue)
			err := p.Run(ctx, func(context.Context) error { return errPoll })
			Expect(err).To(MatchError(errPoll))
			Expect(p.Failures()).To(BeEquivalentTo(1))
		})

		It("does not poll a cancelled context", func() {
			cancel()
			called := false
			p := rdserial.NewPoller(rdserial.OneShot(), rdserial.Abort)
			err := p.Run(ctx, func(context.Context) error {
				called = true
				return nil
			})
			Expect(err).To(MatchError(context.Canceled))
			Expect(called).To(BeFalse())
		})
	})

	Context("repeating", func() {
		It("aborts on the first error", func() {
			calls := 0
			p := rdserial.NewPoller(rdserial.RepeatEvery(time.Millisecond), rdserial.Abort)
			err := p.Run(ctx, func(context.Context) error {
				calls++
				if calls == 3 {
					return errPoll
				}
				return nil
			})
			Expect(err).To(MatchError(errPoll))
			Expect(calls).To(Equal(3))
			Expect(p.Failures()).To(BeEquivalentTo(1))
		})

		It("logs and continues until cancelled", func() {
			var log bytes.Buffer
			var seen []error
			calls := 0
			p := rdserial.NewPoller(rdserial.RepeatEvery(time.Millisecond), rdserial.LogAndContinue)
			p.SetLogger(&log)
			p.SetOnError(func(err error) { seen = append(seen, err) })
			err := p.Run(ctx, func(context.Context) error {
				calls++
				if calls == 5 {
					cancel()
				}
				return errPoll
			})
			Expect(rdserial.IsCancellation(err)).To(BeTrue())
			Expect(calls).To(Equal(5))
			Expect(p.Failures()).To(BeEquivalentTo(4))
			Expect(seen).To(HaveLen(4))
			Expect(log.String()).To(ContainSubstring("ERROR: poll failed, retrying in 1ms: bad response"))
		})

		It("stops while waiting for the next interval", func() {
			p := rdserial.NewPoller(rdserial.RepeatEvery(time.Hour), rdserial.LogAndContinue)
			done := make(chan error, 1)
			go func() {
				done <- p.Run(ctx, func(context.Context) error { return nil })
			}()
			Eventually(p.Polls).Should(BeEquivalentTo(1))
			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
			Expect(p.Polls()).To(BeEquivalentTo(1))
		})

		It("waits on the injected clock", func() {
			mock := clock.NewMock()
			p := rdserial.NewPoller(rdserial.RepeatEvery(time.Minute), rdserial.LogAndContinue)
			p.SetClock(mock)
			done := make(chan error, 1)
			go func() {
				done <- p.Run(ctx, func(context.Context) error { return nil })
			}()
			Eventually(p.Polls).Should(BeEquivalentTo(1))
			Consistently(p.Polls, "20ms").Should(BeEquivalentTo(1))
			Eventually(func() uint64 {
				mock.Add(time.Minute)
				return p.Polls()
			}).Should(BeNumerically(">=", 3))
			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})
	})

	Describe("ParseErrorPolicy", func() {
		It("accepts the known names", func() {
			Expect(rdserial.ParseErrorPolicy("abort")).To(Equal(rdserial.Abort))
			Expect(rdserial.ParseErrorPolicy("continue")).To(Equal(rdserial.LogAndContinue))
			_, err := rdserial.ParseErrorPolicy("explode")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Schedule", func() {
		It("describes itself", func() {
			Expect(rdserial.OneShot().Repeats()).To(BeFalse())
			Expect(rdserial.RepeatEvery(2 * time.Second).String()).To(Equal("every 2s"))
		})
	})
})
