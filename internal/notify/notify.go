// Package notify sends administrative notifications about content changes.
//
// Delivery never blocks or fails the write that triggered it: Dispatch runs in
// the background, and Notify is bounded by a timeout and reports failure as an
// error the caller may show as a soft warning.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/metrics"
	"github.com/siahsang/notes/internal/utils/stringutils"
)

var ErrNotificationFailed = xerrors.Message("Notification failed")

const (
	maxMetadataLength = 100
	cutMarker         = "...[cut]"
	unknown           = "unknown"
	timestampLayout   = "02.01.2006 15:04"
)

// Event is something an administrator should hear about. Without Recipients it
// goes to the configured admin address.
type Event struct {
	Subject    string
	Body       string
	Recipients []string
	Metadata   map[string]string
	RemoteAddr string
	UserAgent  string
}

type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Options struct {
	From       string
	AdminEmail string
	SiteName   string
	Timeout    time.Duration
	Location   *time.Location
	Clock      clock.Clock
}

type Dispatcher struct {
	sender Sender
	log    *slog.Logger
	opts   Options
	wg     sync.WaitGroup
}

func NewDispatcher(sender Sender, log *slog.Logger, opts Options) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{sender: sender, log: log, opts: opts}
}

// Notify delivers ev and waits at most the configured timeout. The request's
// cancellation does not abort delivery.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) error {
	msg := d.compose(ev)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.Timeout)
	defer cancel()

	result := make(chan error, 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				result <- xerrors.Newf("panic in sender: %v", r)
			}
		}()
		result <- d.sender.Send(ctx, msg)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		metrics.ObserveNotification(metrics.NotificationFailed)
		d.log.Error("Notification failed", "subject", msg.Subject, "to", msg.To, "error", xerrors.Sprint(err))
		return xerrors.Newf("%w: %v", ErrNotificationFailed, err)
	}

	metrics.ObserveNotification(metrics.NotificationSent)
	d.log.Info("Notification sent", "subject", msg.Subject, "to", msg.To)
	return nil
}

// Dispatch delivers ev in the background. Failures are logged and counted only.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error(fmt.Sprintf("panic in background notification: %v", r))
			}
		}()
		_ = d.Notify(ctx, ev)
	}()
}

// Wait blocks until every notification in flight has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for notifications in flight or until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return xerrors.New(ctx.Err())
	}
}

func (d *Dispatcher) compose(ev Event) Message {
	to := ev.Recipients
	if len(to) == 0 {
		to = []string{d.opts.AdminEmail}
	}

	subject := ev.Subject
	if d.opts.SiteName != "" {
		subject = d.opts.SiteName + " - " + ev.Subject
	}

	var body strings.Builder
	body.WriteString(strings.TrimSpace(ev.Body))
	body.WriteString("\n\nTechnical info:\n")
	fmt.Fprintf(&body, "- Time: %s\n", d.opts.Clock.Now().In(d.opts.Location).Format(timestampLayout))
	fmt.Fprintf(&body, "- IP address: %s\n", orUnknown(ev.RemoteAddr))
	fmt.Fprintf(&body, "- Device: %s\n", orUnknown(ev.UserAgent))
	body.WriteString("\nAdditional info:\n")
	body.WriteString(FormatMetadata(ev.Metadata))
	body.WriteString("\n")

	return Message{
		From:    d.opts.From,
		To:      to,
		Subject: subject,
		Body:    body.String(),
	}
}

// FormatMetadata renders metadata as sorted "key: value" lines, HTML-escaped and
// cut at 100 characters each.
func FormatMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return "None"
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, cut(k)+": "+cut(metadata[k]))
	}
	return strings.Join(lines, "\n")
}

func cut(s string) string {
	return stringutils.Truncate(html.EscapeString(s), maxMetadataLength, cutMarker)
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
