package model_test

import (
	"errors"
	"fmt"
	"testing"

	model "github.com/okian/tictac/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestGameRecord(t *testing.T) {
	convey.Convey("Given a game record between two players", t, func() {
		g := model.GameRecord{P1: "alice", P2: "bob", Turn: "alice"}

		convey.Convey("Then participants map to their player numbers", func() {
			convey.So(g.PlayerNumber("alice"), convey.ShouldEqual, 1)
			convey.So(g.PlayerNumber("bob"), convey.ShouldEqual, 2)
			convey.So(g.PlayerNumber("carol"), convey.ShouldEqual, 0)
			convey.So(g.PlayerNumber(""), convey.ShouldEqual, 0)
			convey.So(g.PlayerID(1), convey.ShouldEqual, "alice")
			convey.So(g.PlayerID(2), convey.ShouldEqual, "bob")
		})

		convey.Convey("When it is cloned and the clone is modified", func() {
			g.Moves = []model.Move{{Player: 1, X: 1, Y: 1}}
			c := g.Clone()
			c.Moves[0].X = 2
			c.Moves = append(c.Moves, model.Move{Player: 2, X: 0, Y: 0})

			convey.Convey("Then the original is untouched", func() {
				convey.So(g.Moves, convey.ShouldHaveLength, 1)
				convey.So(g.Moves[0].X, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("Then it is not finished until an outcome is written", func() {
			convey.So(g.Finished(), convey.ShouldBeFalse)
			g.Outcome = model.OutcomeTie
			convey.So(g.Finished(), convey.ShouldBeTrue)
		})
	})
}

func TestCommandCoords(t *testing.T) {
	convey.Convey("Given move commands", t, func() {
		x, y := 0, 2
		convey.Convey("Then coordinates are reported only when both are present", func() {
			_, _, ok := model.Command{Kind: model.KindMove}.Coords()
			convey.So(ok, convey.ShouldBeFalse)

			_, _, ok = model.Command{Kind: model.KindMove, X: &x}.Coords()
			convey.So(ok, convey.ShouldBeFalse)

			gx, gy, ok := model.Command{Kind: model.KindMove, X: &x, Y: &y}.Coords()
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(gx, convey.ShouldEqual, 0)
			convey.So(gy, convey.ShouldEqual, 2)
		})
	})
}

func TestRejection(t *testing.T) {
	convey.Convey("Given a rejection wrapped by a caller", t, func() {
		err := fmt.Errorf("apply move: %w", model.Reject(model.ErrNotYourTurn, "It's not your turn. Be patient!"))

		convey.Convey("Then its kind and player message survive wrapping", func() {
			convey.So(errors.Is(err, model.ErrNotYourTurn), convey.ShouldBeTrue)
			msg, ok := model.PlayerMessage(err)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(msg, convey.ShouldEqual, "It's not your turn. Be patient!")
			convey.So(model.IsDomain(err), convey.ShouldBeTrue)
		})

		convey.Convey("Then matchmaking and vocabulary rejections are not player-facing", func() {
			convey.So(model.IsDomain(model.Reject(model.ErrSelfMatch, "self")), convey.ShouldBeFalse)
			convey.So(model.IsDomain(model.Reject(model.ErrUnknownCommand, "nope")), convey.ShouldBeFalse)
			convey.So(model.IsDomain(errors.New("boom")), convey.ShouldBeFalse)
		})
	})
}

func TestKindLabel(t *testing.T) {
	convey.Convey("Kinds outside the vocabulary share one label", t, func() {
		convey.So(model.KindMove.Label(), convey.ShouldEqual, "move")
		convey.So(model.KindCheckin.Label(), convey.ShouldEqual, "checkin")
		convey.So(model.Kind("resign").Label(), convey.ShouldEqual, "unknown")
		convey.So(model.Kind("").Label(), convey.ShouldEqual, "unknown")
	})
}
