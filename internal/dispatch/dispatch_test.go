package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tictac/internal/adapters/repository"
	"github.com/okian/tictac/internal/dispatch"
	"github.com/okian/tictac/internal/domain/matchmaking"
	"github.com/okian/tictac/internal/domain/model"
	"github.com/okian/tictac/internal/domain/notify"
	"github.com/okian/tictac/pkg/logger"
)

func init() {
	_ = logger.Init()
	_ = logger.SetLevelString("error")
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	ctx     context.Context
	store   *repository.MemoryStore
	records *repository.Records
	clock   *clock
	d       *dispatch.Dispatcher
}

func newHarness(t *testing.T, store repository.Store) *harness {
	t.Helper()
	h := &harness{ctx: context.Background(), clock: &clock{now: time.UnixMilli(1_700_000_000_000)}}
	if store == nil {
		h.store = repository.NewMemoryStore(h.ctx, repository.WithMaxRetries(10_000))
		t.Cleanup(func() { _ = h.store.Close() })
		store = h.store
	}
	h.records = repository.NewRecords(store)
	h.d = dispatch.New(h.records,
		dispatch.WithClock(h.clock.Now),
		dispatch.WithCheckinPeriod(20*time.Second),
	)
	return h
}

func (h *harness) send(uid string, cmd model.Command) error {
	del, err := h.records.AppendCommand(h.ctx, uid, cmd, h.clock.Now())
	if err != nil {
		return err
	}
	return h.d.Handle(h.ctx, del)
}

func (h *harness) match(uid string) error {
	return h.send(uid, model.Command{Kind: model.KindMatch})
}

func (h *harness) move(uid string, x, y int) error {
	return h.send(uid, model.Command{Kind: model.KindMove, X: &x, Y: &y})
}

func (h *harness) checkin(uid string) error {
	return h.send(uid, model.Command{Kind: model.KindCheckin})
}

func (h *harness) state(uid string) model.PlayerState {
	ps, err := h.records.PlayerState(h.ctx, uid)
	So(err, ShouldBeNil)
	return ps
}

func (h *harness) game(id string) model.GameRecord {
	g, err := h.records.Game(h.ctx, id)
	So(err, ShouldBeNil)
	return g
}

func (h *harness) pair(p1, p2 string) string {
	So(h.match(p1), ShouldBeNil)
	So(h.match(p2), ShouldBeNil)
	id := h.state(p1).GameID
	So(id, ShouldNotBeEmpty)
	So(h.state(p2).GameID, ShouldEqual, id)
	return id
}

func TestMatchmaking(t *testing.T) {
	Convey("Given an empty arbiter", t, func() {
		h := newHarness(t, nil)

		Convey("The first player to match is parked", func() {
			So(h.match("alice"), ShouldBeNil)
			So(h.state("alice"), ShouldResemble, model.PlayerState{Matching: true, MatchingSince: h.clock.Now().UnixMilli()})
			slot, err := h.records.WaitingSlot(h.ctx)
			So(err, ShouldBeNil)
			So(slot.UID, ShouldEqual, "alice")

			Convey("A second player is paired and the waiting player moves first", func() {
				So(h.match("bob"), ShouldBeNil)
				slot, err := h.records.WaitingSlot(h.ctx)
				So(err, ShouldBeNil)
				So(slot, ShouldBeNil)

				alice, bob := h.state("alice"), h.state("bob")
				So(alice.Matching, ShouldBeFalse)
				So(alice.GameID, ShouldNotBeEmpty)
				So(alice.Message, ShouldEqual, notify.MsgYourTurn)
				So(bob.GameID, ShouldEqual, alice.GameID)
				So(bob.Message, ShouldEqual, notify.MsgWaiting)

				g := h.game(alice.GameID)
				So(g.P1, ShouldEqual, "alice")
				So(g.P2, ShouldEqual, "bob")
				So(g.Turn, ShouldEqual, "alice")
				So(g.P1Checkin, ShouldEqual, h.clock.Now().UnixMilli())
				So(g.P2Checkin, ShouldEqual, h.clock.Now().UnixMilli())

				Convey("And a third player is parked again", func() {
					decision, err := h.d.Match(h.ctx, "carol")
					So(err, ShouldBeNil)
					So(decision.Result, ShouldEqual, matchmaking.Parked)
				})
			})

			Convey("The same player matching again is ignored", func() {
				So(h.match("alice"), ShouldBeNil)
				slot, err := h.records.WaitingSlot(h.ctx)
				So(err, ShouldBeNil)
				So(slot.UID, ShouldEqual, "alice")

				_, err = h.d.Match(h.ctx, "alice")
				So(errors.Is(err, model.ErrSelfMatch), ShouldBeTrue)
			})
		})

		Convey("Every handled command is acknowledged", func() {
			So(h.match("alice"), ShouldBeNil)
			So(h.send("alice", model.Command{Kind: "dance"}), ShouldBeNil)
			pending, err := h.records.PendingCommands(h.ctx)
			So(err, ShouldBeNil)
			So(pending, ShouldBeEmpty)
		})
	})
}

// interleave runs hook once, right after a game reference is written to the
// watched player's state.
type interleave struct {
	repository.Store
	key  string
	once sync.Once
	hook func()
}

func (s *interleave) Set(ctx context.Context, key string, value []byte) error {
	if err := s.Store.Set(ctx, key, value); err != nil {
		return err
	}
	if key == s.key && strings.Contains(string(value), `"game"`) {
		s.once.Do(s.hook)
	}
	return nil
}

func TestDuplicateMatchDuringPairing(t *testing.T) {
	Convey("Given alice parked and a duplicate of her match landing while bob pairs with her", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore(ctx)
		defer func() { _ = mem.Close() }()
		store := &interleave{Store: mem, key: repository.PlayerStateKey("alice")}
		h := newHarness(t, store)

		So(h.match("alice"), ShouldBeNil)
		var dupErr error
		store.hook = func() { dupErr = h.match("alice") }
		So(h.match("bob"), ShouldBeNil)
		So(dupErr, ShouldBeNil)

		id := h.state("bob").GameID
		So(id, ShouldNotBeEmpty)

		Convey("The duplicate wins alice's state and parks her again", func() {
			So(h.state("alice"), ShouldResemble, model.PlayerState{Matching: true, MatchingSince: h.clock.Now().UnixMilli()})
			slot, err := h.records.WaitingSlot(h.ctx)
			So(err, ShouldBeNil)
			So(slot.UID, ShouldEqual, "alice")
		})

		Convey("Bob keeps the game, which nobody else will move in", func() {
			g := h.game(id)
			So(g.P1, ShouldEqual, "alice")
			So(g.P2, ShouldEqual, "bob")
			So(g.Moves, ShouldBeEmpty)
			So(h.move("alice", 0, 0), ShouldBeNil)
			So(h.state("alice").Message, ShouldNotBeEmpty)
			So(h.game(id).Moves, ShouldBeEmpty)
		})

		Convey("The next player to match is paired with alice in a new game", func() {
			So(h.match("carol"), ShouldBeNil)
			next := h.state("carol").GameID
			So(next, ShouldNotBeEmpty)
			So(next, ShouldNotEqual, id)
			So(h.state("alice").GameID, ShouldEqual, next)
			So(h.state("bob").GameID, ShouldEqual, id)
		})
	})
}

func TestConcurrentMatchmaking(t *testing.T) {
	Convey("Given many players matching at once", t, func() {
		h := newHarness(t, nil)
		const players = 60

		var wg sync.WaitGroup
		var failures atomic.Int64
		for i := 0; i < players; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := h.match(fmt.Sprintf("p%02d", i)); err != nil {
					failures.Add(1)
				}
			}(i)
		}
		wg.Wait()

		Convey("Every player ends up in exactly one game with one opponent", func() {
			So(failures.Load(), ShouldEqual, 0)
			slot, err := h.records.WaitingSlot(h.ctx)
			So(err, ShouldBeNil)
			So(slot, ShouldBeNil)

			games, err := h.records.Games(h.ctx)
			So(err, ShouldBeNil)
			So(games, ShouldHaveLength, players/2)

			seen := map[string]string{}
			for id, g := range games {
				for _, uid := range []string{g.P1, g.P2} {
					_, dup := seen[uid]
					So(dup, ShouldBeFalse)
					seen[uid] = id
				}
				So(g.P1, ShouldNotEqual, g.P2)
			}
			So(seen, ShouldHaveLength, players)
			for uid, id := range seen {
				So(h.state(uid).GameID, ShouldEqual, id)
			}
		})
	})
}

func TestMoves(t *testing.T) {
	Convey("Given a game between alice and bob", t, func() {
		h := newHarness(t, nil)
		id := h.pair("alice", "bob")

		Convey("A valid move is applied and the turn passes", func() {
			So(h.move("alice", 1, 1), ShouldBeNil)
			g := h.game(id)
			So(g.Moves, ShouldResemble, []model.Move{{Player: 1, X: 1, Y: 1}})
			So(g.Turn, ShouldEqual, "bob")
			So(h.state("alice").Message, ShouldEqual, notify.MsgWaiting)
			So(h.state("bob").Message, ShouldEqual, notify.MsgYourTurn)
		})

		Convey("Moving out of turn is rejected with a message", func() {
			before := h.game(id)
			So(h.move("bob", 0, 0), ShouldBeNil)
			So(h.game(id), ShouldResemble, before)
			So(h.state("bob").Message, ShouldEqual, "It's not your turn. Be patient!")
			So(h.state("bob").GameID, ShouldEqual, id)
		})

		Convey("Moving onto a taken cell is rejected", func() {
			So(h.move("alice", 0, 0), ShouldBeNil)
			So(h.move("bob", 0, 0), ShouldBeNil)
			So(h.state("bob").Message, ShouldEqual, "You can't move there - space already taken!")
			So(h.game(id).Turn, ShouldEqual, "bob")
		})

		Convey("Moves out of bounds or without coordinates are rejected", func() {
			So(h.move("alice", 3, 0), ShouldBeNil)
			So(h.state("alice").Message, ShouldEqual, "That move is out of bounds!")
			So(h.send("alice", model.Command{Kind: model.KindMove}), ShouldBeNil)
			So(h.state("alice").Message, ShouldEqual, "That move is out of bounds!")
			So(h.game(id).Moves, ShouldBeEmpty)
		})

		Convey("A player outside the game is told so", func() {
			So(h.move("mallory", 0, 0), ShouldBeNil)
			So(h.state("mallory").Message, ShouldEqual, "You're not in a game")
		})

		Convey("A player pointing at someone else's game is not a player", func() {
			So(h.records.SetPlayerState(h.ctx, "mallory", model.PlayerState{GameID: id}), ShouldBeNil)
			So(h.move("mallory", 0, 0), ShouldBeNil)
			So(h.state("mallory").Message, ShouldEqual, "You're not playing this game!")
		})

		Convey("A state pointing at a missing game reads as not in a game", func() {
			So(h.records.SetPlayerState(h.ctx, "zed", model.PlayerState{GameID: "gone"}), ShouldBeNil)
			So(h.move("zed", 0, 0), ShouldBeNil)
			So(h.state("zed").Message, ShouldEqual, "You're not in a game")
		})

		Convey("Completing a column wins and releases both players", func() {
			for _, m := range []struct {
				uid  string
				x, y int
			}{{"alice", 0, 0}, {"bob", 1, 0}, {"alice", 0, 1}, {"bob", 1, 1}, {"alice", 0, 2}} {
				So(h.move(m.uid, m.x, m.y), ShouldBeNil)
			}
			g := h.game(id)
			So(g.Outcome, ShouldEqual, model.OutcomeWinP1)
			So(g.Turn, ShouldBeEmpty)
			So(g.WinMoves, ShouldResemble, []model.Cell{{0, 0}, {0, 1}, {0, 2}})
			So(h.state("alice"), ShouldResemble, model.PlayerState{Message: notify.MsgYouWon})
			So(h.state("bob"), ShouldResemble, model.PlayerState{Message: notify.MsgTheyWon})

			Convey("and later moves are refused because nobody is in a game", func() {
				So(h.move("bob", 2, 2), ShouldBeNil)
				So(h.state("bob").Message, ShouldEqual, "You're not in a game")
			})
		})

		Convey("Filling the board without a line is a tie", func() {
			for _, m := range []struct {
				uid  string
				x, y int
			}{
				{"alice", 0, 0}, {"bob", 1, 0}, {"alice", 2, 0},
				{"bob", 1, 1}, {"alice", 0, 1}, {"bob", 0, 2},
				{"alice", 1, 2}, {"bob", 2, 1}, {"alice", 2, 2},
			} {
				So(h.move(m.uid, m.x, m.y), ShouldBeNil)
			}
			g := h.game(id)
			So(g.Outcome, ShouldEqual, model.OutcomeTie)
			So(h.state("alice").Message, ShouldEqual, notify.MsgTie)
			So(h.state("bob").Message, ShouldEqual, notify.MsgTie)
		})

		Convey("Concurrent moves by both players commit at most one per turn", func() {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(2)
				go func(i int) { defer wg.Done(); _ = h.move("alice", i%3, (i/3)%3) }(i)
				go func(i int) { defer wg.Done(); _ = h.move("bob", (i+1)%3, (i/3+1)%3) }(i)
			}
			wg.Wait()

			g := h.game(id)
			So(len(g.Moves), ShouldBeGreaterThan, 0)
			for i, m := range g.Moves {
				So(m.Player, ShouldEqual, i%2+1)
			}
			cells := map[[2]int]bool{}
			for _, m := range g.Moves {
				So(cells[[2]int{m.X, m.Y}], ShouldBeFalse)
				cells[[2]int{m.X, m.Y}] = true
			}
		})
	})
}

func TestCheckins(t *testing.T) {
	Convey("Given a game between alice and bob", t, func() {
		h := newHarness(t, nil)
		id := h.pair("alice", "bob")

		Convey("A timely checkin only refreshes the timestamp", func() {
			h.clock.Advance(10 * time.Second)
			So(h.checkin("bob"), ShouldBeNil)
			g := h.game(id)
			So(g.Finished(), ShouldBeFalse)
			So(g.P2Checkin, ShouldEqual, h.clock.Now().UnixMilli())
			So(h.state("alice").Message, ShouldEqual, notify.MsgYourTurn)
			So(h.state("bob").Message, ShouldEqual, notify.MsgWaiting)
		})

		Convey("A checkin after the opponent missed two periods forfeits them", func() {
			h.clock.Advance(60 * time.Second)
			So(h.checkin("bob"), ShouldBeNil)
			g := h.game(id)
			So(g.Outcome, ShouldEqual, model.OutcomeForfeitP1)
			So(g.Turn, ShouldBeEmpty)
			So(h.state("alice"), ShouldResemble, model.PlayerState{Message: notify.MsgGaveUp})
			So(h.state("bob"), ShouldResemble, model.PlayerState{Message: notify.MsgOpponentQuit})
		})

		Convey("Exactly two missed periods is not yet a forfeit", func() {
			h.clock.Advance(40 * time.Second)
			So(h.checkin("alice"), ShouldBeNil)
			So(h.game(id).Finished(), ShouldBeFalse)
		})

		Convey("Checking in on a finished game is rejected", func() {
			So(h.records.UpdatePlayerState(h.ctx, "alice", repository.Fields{"game": id}), ShouldBeNil)
			_, err := h.records.TransactGame(h.ctx, id, func(g model.GameRecord) (model.GameRecord, error) {
				g.Outcome, g.Turn = model.OutcomeTie, ""
				return g, nil
			})
			So(err, ShouldBeNil)
			So(h.checkin("alice"), ShouldBeNil)
			So(h.state("alice").Message, ShouldEqual, "Game is over, no need to check in.")
		})

		Convey("Checking in without a game is rejected", func() {
			So(h.checkin("nobody"), ShouldBeNil)
			So(h.state("nobody").Message, ShouldEqual, "You're not in a game")
		})
	})
}

// flakyStore fails every Transact with ErrUnavailable.
type flakyStore struct {
	repository.Store
	acks atomic.Int64
}

func (f *flakyStore) Transact(context.Context, string, repository.Transform) ([]byte, error) {
	return nil, fmt.Errorf("%w: injected", repository.ErrUnavailable)
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	f.acks.Add(1)
	return f.Store.Delete(ctx, key)
}

func TestStoreUnavailable(t *testing.T) {
	Convey("Given a store whose transactions fail", t, func() {
		mem := repository.NewMemoryStore(context.Background())
		defer func() { _ = mem.Close() }()
		flaky := &flakyStore{Store: mem}
		h := newHarness(t, flaky)

		Convey("The failure is returned to the delivery layer and the command is still acknowledged", func() {
			err := h.match("alice")
			So(repository.IsUnavailable(err), ShouldBeTrue)
			So(flaky.acks.Load(), ShouldEqual, 1)
			// The flag is already down while the slot never saw alice; the
			// reconciler picks such players up.
			So(h.state("alice").Matching, ShouldBeTrue)
			_, err = mem.Get(context.Background(), repository.MatchingKey)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
