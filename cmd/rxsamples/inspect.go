package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/xinjiayu/rx"
)

var (
	valueColor     = color.New(color.FgGreen)
	errorColor     = color.New(color.FgRed, color.Bold)
	completedColor = color.New(color.FgCyan)
)

// printer 串行化多个观察者对同一输出的写入
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) line(c *color.Color, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) title(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "== %s ==\n", name)
}

// Inspect 打印观察到的每个通知
func Inspect[T any](p *printer, name string) rx.Observer[T] {
	return rx.NewObserver(
		func(v T) { p.line(valueColor, "%s has generated value %v", name, v) },
		func(err error) { p.line(errorColor, "%s has generated exception %v", name, err) },
		func() { p.line(completedColor, "%s has completed", name) },
	)
}
