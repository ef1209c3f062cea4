package ros

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/ros/rosbridge"
)

// BagMessage is one recorded message, its body in the same JSON form rosbridge delivers.
type BagMessage struct {
	Topic string
	Stamp time.Time
	Data  json.RawMessage
}

type bagLine struct {
	Meta Time            `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to read ros bag %s", filename)
	}
	return rb, nil
}

// BagMessages returns every message on the given topics in recording order. Topics with no
// messages in the bag are skipped.
func BagMessages(rb *rosbag.RosBag, topics []string) ([]BagMessage, error) {
	wanted := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		wanted[topic] = struct{}{}
	}
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(topic string) bool {
			_, ok := wanted[topic]
			return ok
		},
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	var all []BagMessage
	for _, topic := range topics {
		buf := rb.TopicsAsJSON[topic]
		if buf == nil {
			continue
		}
		msgs, err := decodeBagLines(topic, buf)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}
	slices.SortStableFunc(all, func(a, b BagMessage) int {
		return a.Stamp.Compare(b.Stamp)
	})
	return all, nil
}

func decodeBagLines(topic string, r io.Reader) ([]BagMessage, error) {
	var msgs []BagMessage
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var bl bagLine
			if jsonErr := json.Unmarshal(line, &bl); jsonErr != nil {
				return nil, errors.Wrapf(jsonErr, "bad bag message on %s", topic)
			}
			msgs = append(msgs, BagMessage{Topic: topic, Stamp: bl.Meta.Time(), Data: bl.Data})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return msgs, nil
			}
			return nil, err
		}
	}
}

// Replayer feeds recorded messages to topic handlers.
type Replayer struct {
	// Rate scales the recorded gaps between messages. Zero or less replays as fast as possible.
	Rate  float64
	Clock clock.Clock
	// SimClock, when set, is moved to each message's recorded stamp just before the message is
	// delivered, so consumers judging transform age see recorded time.
	SimClock *clock.Mock
	// Settle, when set, runs before each delivery and must return once everything delivered so
	// far has been handled.
	Settle func(ctx context.Context) error
	Logger logging.Logger
}

// Replay delivers msgs in order to the handler handlerFor returns for each topic. Messages on
// topics without a handler are dropped. It returns the number of messages delivered.
func (r Replayer) Replay(
	ctx context.Context,
	msgs []BagMessage,
	handlerFor func(topic string) rosbridge.Handler,
) (int, error) {
	clk := r.Clock
	if clk == nil {
		clk = clock.New()
	}

	delivered := 0
	var prev time.Time
	for i, msg := range msgs {
		if r.Rate > 0 && i > 0 && msg.Stamp.After(prev) {
			gap := time.Duration(float64(msg.Stamp.Sub(prev)) / r.Rate)
			timer := clk.Timer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return delivered, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		prev = msg.Stamp

		handler := handlerFor(msg.Topic)
		if handler == nil {
			if r.Logger != nil {
				r.Logger.Debugw("no handler for recorded topic", "topic", msg.Topic)
			}
			continue
		}
		if r.Settle != nil {
			if err := r.Settle(ctx); err != nil {
				return delivered, err
			}
		}
		if r.SimClock != nil && msg.Stamp.After(r.SimClock.Now()) {
			r.SimClock.Set(msg.Stamp)
		}
		handler(ctx, msg.Data)
		delivered++
	}
	return delivered, nil
}
