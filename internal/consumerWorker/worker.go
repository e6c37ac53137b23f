package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wb-go/wbf/zlog"

	"gathered/internal/dto"
	"gathered/internal/engine"
	"gathered/internal/mailer"
	"gathered/internal/model"
	"gathered/internal/rabbit"
	"gathered/internal/repo"
)

const startLayout = "at 3:04 PM on Jan 2, 2006"

type Reader struct {
	RMQ      rabbit.Broker
	repo     repo.Repository
	mail     mailer.Sender
	resolver *engine.Resolver
	now      func() time.Time
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewReader(rmq rabbit.Broker, repo repo.Repository, mail mailer.Sender, resolver *engine.Resolver) *Reader {
	return &Reader{
		RMQ:      rmq,
		repo:     repo,
		mail:     mail,
		resolver: resolver,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("🐇 RabbitMQ Reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			return r.Handle(cctx, body)
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("🛑 RabbitMQ Reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// Handle processes one notification. State is always re-read from storage so a
// message that outlived its registration is dropped quietly. Returned errors
// make the broker redeliver.
func (r *Reader) Handle(ctx context.Context, body []byte) error {
	var msg dto.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Msgf("Failed to unmarshal message: %s", string(body))
		// malformed payloads never succeed on redelivery
		return nil
	}

	zlog.Logger.Info().
		Str("kind", msg.Kind).
		Str("registration_id", msg.RegistrationID.String()).
		Msg("📩 Received message from RabbitMQ")

	now := r.now()
	if msg.Kind == dto.NotifyReminder && msg.RemindAt != nil && msg.RemindAt.After(now) {
		// the broker caps a single delay, so long waits hop more than once
		return r.requeue(body, msg.RemindAt.Sub(now))
	}

	reg, err := r.repo.GetRegistrationByID(ctx, msg.RegistrationID)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			zlog.Logger.Info().Str("registration_id", msg.RegistrationID.String()).Msg("registration gone, skipping")
			return nil
		}
		return err
	}

	if !current(msg, reg) {
		zlog.Logger.Info().
			Str("kind", msg.Kind).
			Str("registration_id", reg.ID.String()).
			Str("status", reg.Status).
			Msg("⏳ Registration moved on, skipping stale notification")
		return nil
	}

	event, err := r.repo.GetEventByID(ctx, reg.EventID)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			return nil
		}
		return err
	}

	timing := r.resolver.Resolve(engine.ScheduleOf(event), now)
	if msg.Kind == dto.NotifyReminder && timing.Phase != engine.PhaseUpcoming {
		return nil
	}

	student, err := r.repo.GetStudentByID(ctx, reg.StudentID)
	if err != nil {
		if errors.Is(err, repo.ErrStudentNotFound) {
			return nil
		}
		return err
	}

	when := "soon"
	if timing.Known() {
		when = timing.Start.Format(startLayout)
	}
	subject, text := mailer.Compose(msg.Kind, student.Name, event.Title, when)

	if err := r.mail.Send(ctx, mailer.Message{To: student.Email, Name: student.Name, Subject: subject, Body: text}); err != nil {
		zlog.Logger.Warn().
			Err(err).
			Msg("Failed to send notification on e-mail")
		return err
	}

	zlog.Logger.Info().
		Str("email", student.Email).
		Str("kind", msg.Kind).
		Msg("📧 Notification email sent successfully")
	return nil
}

func (r *Reader) requeue(body []byte, wait time.Duration) error {
	if err := r.RMQ.Publish(body, wait); err != nil {
		return err
	}
	zlog.Logger.Debug().Dur("wait", wait).Msg("reminder not due yet, re-queued")
	return nil
}

// current reports whether msg still describes reg: the row holds the status the
// message is about and entered it at the stamped instant.
func current(msg dto.NotificationMessage, reg *model.Registration) bool {
	status := engine.RegistrationStatus(reg.Status)
	switch msg.Kind {
	case dto.NotifyRegistered, dto.NotifyReminder:
		if status != engine.Registered {
			return false
		}
	case dto.NotifyCancelled:
		if status != engine.Cancelled {
			return false
		}
	case dto.NotifyAttendance:
		if status != engine.Attended && status != engine.Absent {
			return false
		}
	default:
		return false
	}
	// postgres keeps microseconds
	return engine.Stamp(reg).Truncate(time.Microsecond).Equal(msg.Stamp.Truncate(time.Microsecond))
}
