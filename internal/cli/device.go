package cli

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/KiritoRJ/assistenciatecnica/internal/remote"
	"github.com/KiritoRJ/assistenciatecnica/internal/session"
	"github.com/KiritoRJ/assistenciatecnica/internal/store/sqlite"
	"github.com/KiritoRJ/assistenciatecnica/internal/syncer"
	"github.com/KiritoRJ/assistenciatecnica/internal/workspace"
)

// device is one logged-in tenant session on this machine.
type device struct {
	session   *session.Session
	local     *sqlite.Store
	engine    *syncer.Engine
	workspace *workspace.Workspace
	deviceID  string
}

func (o *RootOptions) login(ctx context.Context) (*session.Session, *remote.Client, error) {
	if strings.TrimSpace(o.Username) == "" || o.Password == "" {
		return nil, nil, NewExitError(ExitCommandError, "username and password are required (--username/--password or ASSIST_USERNAME/ASSIST_PASSWORD)")
	}
	client := remote.New(o.RemoteURL, o.Timeout)
	sess, err := session.Login(ctx, client, o.Username, o.Password)
	if err != nil {
		return nil, nil, classify(err)
	}
	return sess, client.WithToken(sess.Token), nil
}

// openDevice logs in, opens the local store and reconciles every bucket.
func (o *RootOptions) openDevice(ctx context.Context) (*device, error) {
	sess, client, err := o.login(ctx)
	if err != nil {
		return nil, err
	}
	if sess.IsSuper() {
		sess.Logout()
		return nil, NewExitError(ExitCommandError, "operator accounts have no tenant data, use the tenants commands")
	}

	local, err := sqlite.Open(o.LocalDB)
	if err != nil {
		sess.Logout()
		return nil, WrapExitError(ExitFailure, "open local store", err)
	}
	deviceID, err := local.DeviceID(ctx)
	if err != nil {
		sess.Logout()
		local.Close()
		return nil, WrapExitError(ExitFailure, "read device id", err)
	}

	engine := syncer.New(sess, local, client, syncer.Config{
		BackoffMin:    o.client.BackoffMin,
		BackoffMax:    o.client.BackoffMax,
		DrainInterval: o.client.DrainInterval,
	})
	if err := engine.Bootstrap(ctx); err != nil {
		engine.Close()
		sess.Logout()
		local.Close()
		return nil, classify(err)
	}

	return &device{
		session:   sess,
		local:     local,
		engine:    engine,
		workspace: workspace.New(engine, sess),
		deviceID:  deviceID,
	}, nil
}

// flush pushes queued writes once. Failures stay queued for the next run.
func (d *device) flush(ctx context.Context) syncer.Status {
	acked := d.engine.Drain(ctx)
	status, err := d.engine.Status(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("[cli] read sync status failed")
	}
	log.Debug().Int("acked", acked).Int("pending", status.Pending).Msg("[cli] outbox drained")
	return status
}

func (d *device) close() {
	d.engine.Close()
	d.session.Logout()
	if err := d.local.Close(); err != nil {
		log.Warn().Err(err).Msg("[cli] close local store failed")
	}
}

// withDevice runs fn against an open device and closes it afterwards.
func (o *RootOptions) withDevice(ctx context.Context, fn func(d *device) error) error {
	d, err := o.openDevice(ctx)
	if err != nil {
		return err
	}
	defer d.close()
	return classify(fn(d))
}
