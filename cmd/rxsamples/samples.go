package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/xinjiayu/rx"
	"github.com/xinjiayu/rx/broker"
)

// ============================================================================
// subjects
// ============================================================================

func runSubjects(ctx context.Context, p *printer) error {
	p.title("Subject")
	subject := rx.NewSubject[int]()
	subject.OnNext(1) // 没有观察者，丢失
	sub := subject.Subscribe(Inspect[int](p, "subject"))
	subject.OnNext(2)
	subject.OnNext(3)
	sub.Dispose()
	subject.OnNext(4)

	p.title("ReplaySubject")
	replay := rx.NewReplaySubject[int](rx.BufferCount(2))
	replay.OnNext(123)
	replay.OnNext(456)
	replay.OnNext(789)
	replay.Subscribe(Inspect[int](p, "replay"))
	replay.OnCompleted()

	p.title("BehaviorSubject")
	temperature := rx.NewBehaviorSubject(-1.0)
	temperature.Subscribe(Inspect[float64](p, "sensor"))
	temperature.OnNext(0.99)
	temperature.OnCompleted()
	last, err := temperature.Value()
	if err != nil {
		return err
	}
	p.line(valueColor, "sensor value after completion is %v", last)

	p.title("AsyncSubject")
	async := rx.NewAsyncSubject[float64]()
	async.Subscribe(Inspect[float64](p, "async"))
	async.OnNext(1.0)
	async.OnNext(2.0)
	async.OnCompleted()
	async.Subscribe(Inspect[float64](p, "async late"))

	p.title("Start")
	answer := rx.Start(func() (int, error) { return 42, nil })
	return rx.Wait(ctx, rx.DoOnEach(answer, Inspect[int](p, "start")))
}

// ============================================================================
// filtering
// ============================================================================

func runFiltering(ctx context.Context, p *printer) error {
	numbers := rx.Range(1, 10)
	rx.Where(numbers, func(v int) bool { return v%2 == 0 }).Subscribe(Inspect[int](p, "even"))
	rx.Distinct(rx.Just(1, 2, 2, 3, 1, 4)).Subscribe(Inspect[int](p, "distinct"))
	rx.DistinctUntilChanged(rx.Just(1, 1, 2, 2, 1)).Subscribe(Inspect[int](p, "until changed"))
	rx.Take(rx.Skip(numbers, 3), 2).Subscribe(Inspect[int](p, "skip 3 take 2"))
	rx.SkipWhile(numbers, func(v int) bool { return v < 8 }).Subscribe(Inspect[int](p, "skip while < 8"))
	rx.TakeLast(numbers, 2).Subscribe(Inspect[int](p, "take last 2"))
	rx.SkipLast(rx.Range(1, 4), 2).Subscribe(Inspect[int](p, "skip last 2"))
	rx.ElementAt(numbers, 20).Subscribe(Inspect[int](p, "element 20"))
	rx.OfType[any, string](rx.Just[any](1, "one", 2.0, "two")).Subscribe(Inspect[string](p, "strings"))
	rx.First(rx.Empty[int]()).Subscribe(Inspect[int](p, "first of empty"))

	stop := rx.NewSubject[struct{}]()
	values := rx.NewSubject[int]()
	rx.TakeUntil(values.AsObservable(), stop.AsObservable()).Subscribe(Inspect[int](p, "take until"))
	values.OnNext(1)
	stop.OnNext(struct{}{})
	values.OnNext(2)
	return ctx.Err()
}

// ============================================================================
// aggregation
// ============================================================================

func runAggregation(ctx context.Context, p *printer) error {
	readings := rx.Just(3.0, 5.5, 8.0, 6.5)
	rx.Average(readings).Subscribe(Inspect[float64](p, "average"))
	rx.Count(readings).Subscribe(Inspect[int](p, "count"))
	rx.Sum(readings).Subscribe(Inspect[float64](p, "sum"))
	rx.Min(readings).Subscribe(Inspect[float64](p, "min"))
	rx.Max(readings).Subscribe(Inspect[float64](p, "max"))
	rx.Scan(readings, 0.0, func(acc, v float64) float64 { return acc + v }).Subscribe(Inspect[float64](p, "running sum"))
	rx.Any(readings, func(v float64) bool { return v > 7 }).Subscribe(Inspect[bool](p, "any > 7"))
	rx.All(readings, func(v float64) bool { return v > 1 }).Subscribe(Inspect[bool](p, "all > 1"))
	rx.SequenceEqual(rx.Range(1, 3), rx.Just(1, 2, 3)).Subscribe(Inspect[bool](p, "sequence equal"))
	rx.Average(rx.Empty[int]()).Subscribe(Inspect[float64](p, "average of empty"))

	words, err := rx.BlockingToSlice(ctx, rx.Select(rx.Just("reactive", "extensions"), strings.ToUpper))
	if err != nil {
		return err
	}
	p.line(valueColor, "blocking slice %v", words)
	return nil
}

// ============================================================================
// combinators
// ============================================================================

func runCombinators(ctx context.Context, p *printer) error {
	letters := rx.Just("a", "b", "c")
	rx.Zip2(rx.Range(1, 5), letters, func(n int, s string) string {
		return fmt.Sprintf("%d%s", n, s)
	}).Subscribe(Inspect[string](p, "zip"))

	rx.Concat(rx.Just(1, 2), rx.Just(3, 4)).Subscribe(Inspect[int](p, "concat"))
	rx.Merge(rx.Just(1, 2), rx.Just(3)).Subscribe(Inspect[int](p, "merge"))
	rx.StartWith(rx.Just(3, 4), 1, 2).Subscribe(Inspect[int](p, "start with"))
	rx.Repeat(rx.Just("tick"), 3).Subscribe(Inspect[string](p, "repeat"))
	rx.Amb(rx.Never[int](), rx.Just(7)).Subscribe(Inspect[int](p, "amb"))

	// 三个传感器全部为 true 时报警
	sensors := []*rx.BehaviorSubject[bool]{
		rx.NewBehaviorSubject(false),
		rx.NewBehaviorSubject(false),
		rx.NewBehaviorSubject(false),
	}
	alarm := rx.CombineLatest3(sensors[0].AsObservable(), sensors[1].AsObservable(), sensors[2].AsObservable(), func(a, b, c bool) bool {
		return a && b && c
	})
	rx.DistinctUntilChanged(alarm).Subscribe(Inspect[bool](p, "alarm"))
	for _, s := range sensors {
		s.OnNext(true)
	}
	sensors[1].OnNext(false)

	shared := rx.Publish(rx.Just(10, 20))
	shared.Subscribe(Inspect[int](p, "published 1"))
	shared.Subscribe(Inspect[int](p, "published 2"))
	shared.Connect()
	return ctx.Err()
}

// ============================================================================
// errors
// ============================================================================

// succeedAfter 前 failures 次订阅失败，之后发射 value
func succeedAfter[T any](failures int, value T) rx.Observable[T] {
	attempts := 0
	return rx.Defer(func() rx.Observable[T] {
		attempts++
		if attempts <= failures {
			return rx.Throw[T](errors.Errorf("attempt %d failed", attempts))
		}
		return rx.Return(value)
	})
}

func runErrors(ctx context.Context, p *printer) error {
	failing := rx.Concat(rx.Just(1, 2), rx.Throw[int](errors.New("boom")))
	rx.CatchWith(failing, rx.Just(-1)).Subscribe(Inspect[int](p, "catch"))
	rx.OnErrorResumeNext(failing, rx.Just(3)).Subscribe(Inspect[int](p, "resume next"))
	rx.Retry(succeedAfter(3, "ok"), 4).Subscribe(Inspect[string](p, "retry 4"))
	rx.Retry(succeedAfter(3, "ok"), 2).Subscribe(Inspect[string](p, "retry 2"))
	rx.Finally(rx.Just(1), func() { p.line(completedColor, "finally ran") }).Subscribe(Inspect[int](p, "finally"))
	rx.TrySelect(rx.Just("1", "x"), func(s string) (int, error) {
		if s == "x" {
			return 0, errors.Errorf("not a number: %q", s)
		}
		return 1, nil
	}).Subscribe(Inspect[int](p, "try select"))

	policy := func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(rootArgs.tick/10), 5)
	}
	return rx.Wait(ctx, rx.DoOnEach(rx.RetryWithBackoff(succeedAfter(2, "recovered"), policy), Inspect[string](p, "backoff")))
}

// ============================================================================
// time
// ============================================================================

func runTime(ctx context.Context, p *printer) error {
	tick := rootArgs.tick

	ticks := rx.Take(rx.Interval(tick), 5)
	if err := rx.Wait(ctx, rx.DoOnEach(rx.TimeInterval(ticks), Inspect[rx.TimeIntervalItem[int64]](p, "interval"))); err != nil {
		return err
	}
	if err := rx.Wait(ctx, rx.DoOnEach(rx.Buffer(rx.Take(rx.Interval(tick/2), 7), 3, 3), Inspect[[]int64](p, "buffer"))); err != nil {
		return err
	}
	if err := rx.Wait(ctx, rx.DoOnEach(rx.Sample(rx.Take(rx.Interval(tick/4), 10), tick), Inspect[int64](p, "sample"))); err != nil {
		return err
	}

	bursts := rx.Concat(rx.Just(1, 2, 3), rx.Delay(rx.Just(4), 3*tick))
	if err := rx.Wait(ctx, rx.DoOnEach(rx.Throttle(bursts, tick), Inspect[int](p, "throttle"))); err != nil {
		return err
	}

	slow := rx.Delay(rx.Just("late"), 3*tick)
	timeout := rx.Timeout(slow, tick)
	if err := rx.Wait(ctx, rx.DoOnEach(timeout, Inspect[string](p, "timeout"))); !errors.Is(err, rx.ErrTimeout) {
		return errors.Errorf("expected a timeout, got %v", err)
	}
	started := time.Now()
	first, err := rx.BlockingFirst(ctx, rx.Timer(tick))
	if err != nil {
		return err
	}
	p.line(valueColor, "timer has generated value %v after %v", first, time.Since(started).Round(tick))
	return nil
}

// ============================================================================
// broker
// ============================================================================

type playerScored struct {
	Name  string
	Goals int
}

type playerSentOff struct {
	Name   string
	Reason string
}

func runBroker(ctx context.Context, p *printer) error {
	b := broker.New(rx.WithName("match"))
	defer b.Close()

	coach := b.Client("Coach")
	if _, err := broker.Subscribe(coach, func(e playerScored) {
		if e.Goals < 3 {
			p.line(valueColor, "Coach: well done, %s", e.Name)
		}
	}); err != nil {
		return err
	}
	if _, err := broker.Subscribe(coach, func(e playerSentOff) {
		p.line(valueColor, "Coach: well done, %s", e.Name)
	}); err != nil {
		return err
	}

	players := map[string]*broker.Client{}
	for _, name := range []string{"John", "Chris"} {
		c := b.Client(name)
		players[name] = c
		if _, err := broker.Subscribe(c, func(e playerScored) {
			p.line(valueColor, "%s: Nicely done, %s! It's your %d goal.", name, e.Name, e.Goals)
		}, func(e playerScored) bool { return e.Name != name }); err != nil {
			return err
		}
		if _, err := broker.Subscribe(c, func(e playerSentOff) {
			p.line(valueColor, "%s: See you in the lockers, %s!", name, e.Name)
		}, func(e playerSentOff) bool { return e.Name != name }); err != nil {
			return err
		}
	}

	events := []any{
		playerScored{Name: "John", Goals: 1},
		playerScored{Name: "John", Goals: 2},
		playerScored{Name: "John", Goals: 3},
		playerSentOff{Name: "John", Reason: "violence"},
		playerScored{Name: "Chris", Goals: 1},
	}
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		var from *broker.Client
		switch e := e.(type) {
		case playerScored:
			from = players[e.Name]
		case playerSentOff:
			from = players[e.Name]
		}
		if err := from.Publish(e); err != nil {
			return err
		}
	}
	return nil
}
