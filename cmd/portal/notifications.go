package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/siprak/portal/internal/domain/notification"
	"golang.org/x/sync/errgroup"
)

func runListNotifications(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	unreadOnly := fs.Bool("unread", false, "Show unread notifications only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := signedIn(cmdCtx, creds)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	return printNotifications(cmdCtx.Out, s.Notifications.Notifications(), *unreadOnly)
}

func printNotifications(w io.Writer, list []notification.Notification, unreadOnly bool) error {
	unread := notification.UnreadCount(list)
	if err := writef(w, "%d notifications, %d unread\n", len(list), unread); err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "\tID\tTYPE\tPRIORITY\tCREATED\tTITLE"); err != nil {
		return err
	}
	for _, n := range list {
		if unreadOnly && n.Read {
			continue
		}
		if _, err := fmt.Fprintln(tw, formatNotificationRow(n)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatNotificationRow(n notification.Notification) string {
	marker := " "
	if !n.Read {
		marker = "*"
	}
	title := n.Title
	if n.Message != "" {
		title += ": " + n.Message
	}
	created := "-"
	if !n.CreatedAt.IsZero() {
		created = n.CreatedAt.Local().Format(time.DateTime)
	}
	return strings.Join([]string{marker, n.ID, string(n.Kind), string(n.Priority), created, title}, "\t")
}

func runWatch(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	refresh := fs.Duration("refresh", 10*time.Minute, "Session refresh interval (0 disables)")
	resync := fs.Duration("resync", 0, "Full notification refetch interval (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := signedIn(cmdCtx, creds)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	if err := printNotifications(cmdCtx.Out, s.Notifications.Notifications(), false); err != nil {
		return err
	}
	if err := writeln(cmdCtx.Out, "watching for new notifications; press Ctrl+C to stop"); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmdCtx.Ctx)
	g.Go(func() error {
		return every(ctx, *refresh, func() error {
			err := s.Refresh(ctx)
			if errors.Is(err, errors.ErrUnsupported) {
				cmdCtx.Logger.InfoContext(ctx, "gateway cannot refresh sessions; refresh loop stopped")
				return errStopLoop
			}
			if err != nil {
				return fmt.Errorf("refresh session: %w", err)
			}
			return nil
		})
	})
	g.Go(func() error {
		return every(ctx, *resync, func() error {
			if err := s.Notifications.FetchAll(ctx); err != nil {
				cmdCtx.Logger.WarnContext(ctx, "notification resync failed", "error", err)
			}
			return nil
		})
	})
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var errStopLoop = errors.New("stop loop")

// every runs fn on each tick until ctx ends. A zero interval or errStopLoop ends the loop quietly.
func every(ctx context.Context, interval time.Duration, fn func() error) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(); err != nil {
				if errors.Is(err, errStopLoop) {
					return nil
				}
				return err
			}
		}
	}
}

func runNotify(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	to := fs.String("to", "", "Recipient subject id (defaults to the signed-in user)")
	title := fs.String("title", "", "Notification title")
	message := fs.String("message", "", "Notification body")
	kind := fs.String("type", string(notification.KindInfo), "info, success, warning, error, booking, quiz or maintenance")
	priority := fs.String("priority", string(notification.PriorityNormal), "low, normal, high or urgent")
	relatedTable := fs.String("related-table", "", "Table of the related record")
	relatedID := fs.String("related-id", "", "Id of the related record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := signedIn(cmdCtx, creds)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	payload := notification.Payload{
		SubjectID: strings.TrimSpace(*to),
		Title:     *title,
		Message:   *message,
		Kind:      notification.Kind(*kind),
		Priority:  notification.Priority(*priority),
	}
	if *relatedTable != "" {
		payload.RelatedTable = relatedTable
	}
	if *relatedID != "" {
		payload.RelatedID = relatedID
	}

	n, err := s.Notifications.NotifySync(cmdCtx.Ctx, payload)
	if err != nil {
		return err
	}
	if n == nil {
		return errors.New("no recipient: sign in or pass --to")
	}
	return writef(cmdCtx.Out, "sent %s to %s\n", n.ID, n.SubjectID)
}

func runMarkRead(cmdCtx *commandContext, args []string) error {
	return withNotificationID(cmdCtx, "read", args, func(ctx context.Context, s *session, id string) error {
		return s.Notifications.MarkRead(ctx, id)
	})
}

func runDelete(cmdCtx *commandContext, args []string) error {
	return withNotificationID(cmdCtx, "delete", args, func(ctx context.Context, s *session, id string) error {
		return s.Notifications.Delete(ctx, id)
	})
}

func runMarkAllRead(cmdCtx *commandContext, args []string) error {
	return withSignedIn(cmdCtx, "read-all", args, func(ctx context.Context, s *session) error {
		return s.Notifications.MarkAllRead(ctx)
	})
}

func runClear(cmdCtx *commandContext, args []string) error {
	return withSignedIn(cmdCtx, "clear", args, func(ctx context.Context, s *session) error {
		return s.Notifications.ClearAll(ctx)
	})
}

func withSignedIn(cmdCtx *commandContext, name string, args []string, fn func(context.Context, *session) error) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := signedIn(cmdCtx, creds)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	if err := fn(cmdCtx.Ctx, s); err != nil {
		return err
	}
	return writef(cmdCtx.Out, "%d unread\n", s.Notifications.UnreadCount())
}

func withNotificationID(
	cmdCtx *commandContext,
	name string,
	args []string,
	fn func(context.Context, *session, string) error,
) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	id := fs.String("id", "", "Notification id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	s, err := signedIn(cmdCtx, creds)
	if err != nil {
		return err
	}
	defer s.shutdown(cmdCtx)

	if err := fn(cmdCtx.Ctx, s, strings.TrimSpace(*id)); err != nil {
		return err
	}
	return writef(cmdCtx.Out, "%d unread\n", s.Notifications.UnreadCount())
}
