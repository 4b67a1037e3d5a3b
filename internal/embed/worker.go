package embed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultWorker is the bundled fairseq worker.
const DefaultWorker = "python3 scripts/embed_worker.py"

const (
	workerExitGrace = 10 * time.Second
	stderrDrainWait = 2 * time.Second
)

type workerTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *msgpack.Encoder
	dec   *msgpack.Decoder

	stderrDone chan struct{}
	mu         sync.Mutex
	lastStderr string
	waitOnce   sync.Once
	waitErr    error
}

// StartWorker launches opts.Worker and loads the checkpoint in it. The
// process lives until Close and handles every clip of the run.
func StartWorker(ctx context.Context, opts Options) (*Client, error) {
	argv := opts.Worker
	if len(argv) == 0 {
		argv = ParseCommand(DefaultWorker)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %q: %w", argv[0], err)
	}
	log.Info().Strs("argv", argv).Int("pid", cmd.Process.Pid).Msg("embed: worker started")

	t := &workerTransport{
		cmd:        cmd,
		stdin:      stdin,
		enc:        msgpack.NewEncoder(stdin),
		dec:        msgpack.NewDecoder(bufio.NewReader(stdout)),
		stderrDone: make(chan struct{}),
	}
	go t.pumpStderr(stderr)
	return newClient(ctx, t, BackendWorker, opts)
}

func (t *workerTransport) pumpStderr(r io.Reader) {
	defer close(t.stderrDone)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		t.mu.Lock()
		t.lastStderr = line
		t.mu.Unlock()
		log.Debug().Str("worker", line).Msg("embed: worker stderr")
	}
}

func (t *workerTransport) send(m Message) error {
	if err := t.enc.Encode(&m); err != nil {
		return t.exited(err)
	}
	return nil
}

func (t *workerTransport) recv() (Message, error) {
	var m Message
	if err := t.dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, t.exited(err)
		}
		return Message{}, err
	}
	return m, nil
}

// exited describes a broken pipe using the last line the worker printed.
func (t *workerTransport) exited(cause error) error {
	select {
	case <-t.stderrDone:
	case <-time.After(stderrDrainWait):
	}
	t.mu.Lock()
	last := t.lastStderr
	t.mu.Unlock()
	if last != "" {
		return fmt.Errorf("worker exited: %s", last)
	}
	return fmt.Errorf("worker exited: %w", cause)
}

func (t *workerTransport) wait() error {
	t.waitOnce.Do(func() { t.waitErr = t.cmd.Wait() })
	return t.waitErr
}

// close lets the worker exit on its own after stdin closes, killing it if it
// lingers.
func (t *workerTransport) close() error {
	_ = t.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- t.wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(workerExitGrace):
		log.Warn().Int("pid", t.cmd.Process.Pid).Msg("embed: worker did not exit, killing")
		_ = t.cmd.Process.Kill()
		return <-done
	}
}

func (t *workerTransport) abort() error {
	_ = t.cmd.Process.Kill()
	_ = t.stdin.Close()
	go func() { _ = t.wait() }()
	return nil
}
