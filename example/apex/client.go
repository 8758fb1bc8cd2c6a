package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	mcp "github.com/ariffazil/openclaw-arifos-bridge"
	"github.com/ariffazil/openclaw-arifos-bridge/judge"
)

type client struct {
	judge  *judge.Judge
	ctx    context.Context
	cancel context.CancelFunc

	input *bufio.Scanner

	closeLock sync.Mutex
	closed    bool
	done      chan struct{}
}

const exitCommand = "exit"

func newClient(endpoint string) *client {
	ctx, cancel := context.WithCancel(context.Background())
	cli := mcp.NewClient(endpoint, mcp.WithClientInfo(mcp.Info{
		Name:    "apex-example",
		Version: "1.0",
	}))

	return &client{
		judge:  judge.New(cli, judge.WithActorID("apex-example")),
		ctx:    ctx,
		cancel: cancel,
		input:  bufio.NewScanner(os.Stdin),
		done:   make(chan struct{}),
	}
}

func (c *client) run() {
	defer c.stop()
	go c.listenInterruptSignal()

	tools, err := c.judge.ListTools(c.ctx)
	if err != nil {
		fmt.Printf("failed to list tools: %v\n", err)
		return
	}
	fmt.Printf("Connected, server offers: %s\n", strings.Join(tools, ", "))

	for {
		fmt.Println()
		fmt.Println("1. Judge a query")
		fmt.Println("2. Route a message")
		fmt.Println("3. Exit")

		fmt.Println()
		fmt.Print("Enter command number: ")

		input, err := c.waitStdIOInput()
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return
			}
			fmt.Print(err)
			continue
		}

		exit := false
		switch input {
		case "1":
			exit = c.runJudge()
		case "2":
			exit = c.runRoute()
		case "3":
			return
		default:
			fmt.Println("Invalid command")
		}

		if exit {
			return
		}
	}
}

func (c *client) runJudge() bool {
	fmt.Print("Enter query (type exit to go back): ")

	input, err := c.waitStdIOInput()
	if err != nil {
		return errors.Is(err, os.ErrClosed)
	}
	if input == exitCommand {
		return false
	}

	res := c.judge.Evaluate(c.ctx, judge.Query{Text: input})
	fmt.Printf("Verdict: %s (stage %s)\n", res.Verdict, res.Stage)
	if res.Reason != "" {
		fmt.Printf("Reason: %s\n", res.Reason)
	}
	if res.Confidence != nil {
		fmt.Printf("Confidence: %.2f\n", *res.Confidence)
	}
	fmt.Printf("Took %s (session %s, call %s)\n", res.Timing.Total, res.Timing.Session, res.Timing.Call)

	return false
}

func (c *client) runRoute() bool {
	fmt.Print("Enter message (type exit to go back): ")

	input, err := c.waitStdIOInput()
	if err != nil {
		return errors.Is(err, os.ErrClosed)
	}
	if input == exitCommand {
		return false
	}

	out := c.judge.Handle(c.ctx, input, "", "apex-example-user")
	bs, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Printf("failed to marshal outcome: %v\n", err)
		return false
	}
	fmt.Println(string(bs))

	return false
}

func (c *client) listenInterruptSignal() {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	select {
	case <-signalChan:
		c.stop()
	case <-c.done:
	}
}

func (c *client) waitStdIOInput() (string, error) {
	inputChan := make(chan string, 1)
	errsChan := make(chan error, 1)
	go func() {
		if c.input.Scan() {
			inputChan <- strings.TrimSpace(c.input.Text())
			return
		}
		if err := c.input.Err(); err != nil {
			errsChan <- err
			return
		}
		errsChan <- io.EOF
	}()

	select {
	case <-c.ctx.Done():
		return "", os.ErrClosed
	case <-c.done:
		return "", os.ErrClosed
	case err := <-errsChan:
		if errors.Is(err, io.EOF) {
			return "", os.ErrClosed
		}
		return "", err
	case input := <-inputChan:
		return input, nil
	}
}

func (c *client) stop() {
	c.closeLock.Lock()
	defer c.closeLock.Unlock()

	c.cancel()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
