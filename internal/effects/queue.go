package effects

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"

	"github.com/oddjobs/oj/internal/domain"
)

// execTakeQueueItem claims a persisted queue item on behalf of a worker.
// Claiming itself is instantaneous (no external call for the persisted
// queue type); the actual job-kind dispatch this unblocks is produced by
// internal/runtime's worker handler reacting to QueueTaken, not here —
// this effect only owns the claim transition and its concurrency
// bookkeeping re-entry.
func (ex *Executor) execTakeQueueItem(ctx context.Context, eff TakeQueueItem) {
	ex.EmitNow(ctx, domain.Event{
		Kind: domain.KindQueueTaken,
		Payload: &domain.QueueTakenPayload{
			ItemID: eff.ItemID,
			Worker: eff.Worker,
		},
	})
}

// execListQueueItems shells out to an external queue's list command (spec.md
// §4.8.2) and parses its stdout as a JSON array of items. A non-zero exit or
// unparseable stdout polls as empty rather than failing the worker — the
// next wake retries, same as a transient network blip against the queue's
// backing system would.
func (ex *Executor) execListQueueItems(ctx context.Context, eff ListQueueItems) {
	cmd := exec.CommandContext(ctx, "bash", "-c", eff.Cmd)
	cmd.Dir = eff.Cwd

	env := os.Environ()
	for k, v := range eff.Vars {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var items []map[string]interface{}
	if err := cmd.Run(); err == nil {
		_ = json.Unmarshal(stdout.Bytes(), &items)
	}

	ex.EmitNow(ctx, domain.Event{
		Kind: domain.KindWorkerPolled,
		Payload: &domain.WorkerPolledPayload{
			Name:      eff.Worker,
			Namespace: eff.Namespace,
			Items:     items,
		},
	})
}

// execTakeExternalQueueItem shells out to an external queue's take command
// for one already-claimed item (spec.md §4.8.2). The claimed item's fields
// are forwarded into the command's environment namespaced as item_<field>
// so the take command (and the job it dispatches on success) can reference
// them without re-polling.
func (ex *Executor) execTakeExternalQueueItem(ctx context.Context, eff TakeExternalQueueItem) {
	cmd := exec.CommandContext(ctx, "bash", "-c", eff.Cmd)
	cmd.Dir = eff.Cwd

	env := os.Environ()
	for k, v := range eff.Vars {
		env = append(env, k+"="+v)
	}
	for k, v := range eff.Item {
		env = append(env, "item_"+k+"="+domain.StringifyJSONValue(v))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	ex.EmitNow(ctx, domain.Event{
		Kind: domain.KindWorkerTook,
		Payload: &domain.WorkerTookPayload{
			Name:      eff.Worker,
			Namespace: eff.Namespace,
			ItemKey:   eff.ItemKey,
			ExitCode:  exitCode,
			Stderr:    stderr.String(),
			Item:      eff.Item,
		},
	})
}
