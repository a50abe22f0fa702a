package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tictac/internal/adapters/repository"
	service "github.com/okian/tictac/internal/app"
	"github.com/okian/tictac/internal/config"
	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func newStarted(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	opts = append([]service.Option{service.WithWorkerCount(4), service.WithQueueSize(1000)}, opts...)
	svc := service.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })
	return svc
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(100), service.WithDedupeSize(50))

		Convey("Stats before start only carry configuration", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats, ShouldNotContainKey, "queueLength")
		})

		Convey("Commands and reads are refused before start", func() {
			_, err := svc.SubmitCommand(ctx, "alice", model.Command{Kind: model.KindMatch})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.PlayerState(ctx, "alice")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Sweep(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats, ShouldContainKey, "queueLength")

			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}

func TestSubmitCommand(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := newStarted(t)

		Convey("An invalid player id is refused", func() {
			_, err := svc.SubmitCommand(ctx, "a/b", model.Command{Kind: model.KindMatch})
			So(errors.Is(err, repository.ErrInvalidKey), ShouldBeTrue)
		})

		Convey("Unknown players and games are not found", func() {
			_, err := svc.PlayerState(ctx, "nobody")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = svc.Game(ctx, "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("A lone match parks the player", func() {
			d, err := svc.SubmitCommand(ctx, "alice", model.Command{Kind: model.KindMatch})
			So(err, ShouldBeNil)
			So(d.Key, ShouldStartWith, repository.CommandsPrefix+"alice/")
			So(eventually(func() bool {
				ps, err := svc.PlayerState(ctx, "alice")
				return err == nil && ps.Matching
			}), ShouldBeTrue)
		})
	})
}

func TestServiceGame(t *testing.T) {
	Convey("Given two players on a started service", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore(ctx)
		svc := newStarted(t, service.WithStore(mem))

		_, err := svc.SubmitCommand(ctx, "alice", model.Command{Kind: model.KindMatch})
		So(err, ShouldBeNil)
		_, err = svc.SubmitCommand(ctx, "bob", model.Command{Kind: model.KindMatch})
		So(err, ShouldBeNil)

		var gameID string
		So(eventually(func() bool {
			a, errA := svc.PlayerState(ctx, "alice")
			b, errB := svc.PlayerState(ctx, "bob")
			gameID = a.GameID
			return errA == nil && errB == nil && a.GameID != "" && a.GameID == b.GameID
		}), ShouldBeTrue)

		g, err := svc.Game(ctx, gameID)
		So(err, ShouldBeNil)

		Convey("Player one wins down the first column", func() {
			moves := []struct {
				uid  string
				x, y int
			}{
				{g.P1, 0, 0}, {g.P2, 1, 0}, {g.P1, 0, 1}, {g.P2, 1, 1}, {g.P1, 0, 2},
			}
			for i, m := range moves {
				x, y := m.x, m.y
				_, err := svc.SubmitCommand(ctx, m.uid, model.Command{Kind: model.KindMove, X: &x, Y: &y})
				So(err, ShouldBeNil)
				want := i + 1
				So(eventually(func() bool {
					cur, err := svc.Game(ctx, gameID)
					return err == nil && len(cur.Moves) == want
				}), ShouldBeTrue)
			}

			final, err := svc.Game(ctx, gameID)
			So(err, ShouldBeNil)
			So(final.Outcome, ShouldEqual, model.OutcomeWinP1)
			So(eventually(func() bool {
				p1, _ := svc.PlayerState(ctx, g.P1)
				p2, _ := svc.PlayerState(ctx, g.P2)
				return p1.GameID == "" && p2.GameID == ""
			}), ShouldBeTrue)
		})

		Convey("A move out of turn surfaces a message to the player", func() {
			x, y := 1, 1
			_, err := svc.SubmitCommand(ctx, g.P2, model.Command{Kind: model.KindMove, X: &x, Y: &y})
			So(err, ShouldBeNil)
			So(eventually(func() bool {
				ps, err := svc.PlayerState(ctx, g.P2)
				return err == nil && ps.Message != ""
			}), ShouldBeTrue)
		})

		Convey("A move without coordinates is reported as out of bounds", func() {
			x := 1
			_, err := svc.SubmitCommand(ctx, g.P1, model.Command{Kind: model.KindMove, X: &x})
			So(err, ShouldBeNil)
			So(eventually(func() bool {
				ps, err := svc.PlayerState(ctx, g.P1)
				return err == nil && ps.Message == "That move is out of bounds!"
			}), ShouldBeTrue)
			cur, err := svc.Game(ctx, gameID)
			So(err, ShouldBeNil)
			So(cur.Moves, ShouldBeEmpty)
		})

		Convey("An unknown command is consumed without touching the game", func() {
			before, err := svc.PlayerState(ctx, g.P1)
			So(err, ShouldBeNil)
			del, err := svc.SubmitCommand(ctx, g.P1, model.Command{Kind: model.Kind("resign")})
			So(err, ShouldBeNil)
			So(eventually(func() bool {
				_, err := mem.Get(ctx, del.Key)
				return errors.Is(err, repository.ErrNotFound)
			}), ShouldBeTrue)
			after, err := svc.PlayerState(ctx, g.P1)
			So(err, ShouldBeNil)
			So(after, ShouldResemble, before)
		})
	})
}

func TestOpenStore(t *testing.T) {
	Convey("Given a default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		Convey("The memory driver opens a MemoryStore", func() {
			s, err := service.OpenStore(ctx, cfg)
			So(err, ShouldBeNil)
			_, ok := s.(*repository.MemoryStore)
			So(ok, ShouldBeTrue)
			So(s.Close(), ShouldBeNil)
		})

		Convey("The sqlite driver opens a database file", func() {
			cfg.StoreDriver = config.DriverSQLite
			cfg.SQLitePath = filepath.Join(t.TempDir(), "records.db")
			s, err := service.OpenStore(ctx, cfg)
			So(err, ShouldBeNil)
			So(s.Set(ctx, "k", []byte(`{}`)), ShouldBeNil)
			So(s.Close(), ShouldBeNil)
		})

		Convey("An unknown driver is refused", func() {
			cfg.StoreDriver = "etcd"
			_, err := service.OpenStore(ctx, cfg)
			So(errors.Is(err, service.ErrUnknownStore), ShouldBeTrue)
		})

		Convey("Options carry the configured values", func() {
			So(service.Options(cfg), ShouldHaveLength, 6)
		})
	})
}
