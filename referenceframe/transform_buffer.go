// Package referenceframe tracks the tree of coordinate frames the robot lives in and answers
// "where is frame A in frame B" queries.
package referenceframe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/gridnav/spatialmath"
)

// DefaultCacheDuration is how much transform history is kept per link.
const DefaultCacheDuration = 10 * time.Second

// TransformLookup answers pose queries between named frames. A zero `at` asks for the latest
// available transform. Failures are reported as *LookupError.
type TransformLookup interface {
	Lookup(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error)
}

// StampedTransform is the pose of Child expressed in Parent at Stamp.
type StampedTransform struct {
	Parent string
	Child  string
	Stamp  time.Time
	Pose   spatialmath.Pose
	// Static transforms never expire and are valid at any time.
	Static bool
}

type link struct {
	parent  string
	static  bool
	samples []StampedTransform // ordered by stamp, oldest first
}

// TransformBuffer is a TransformLookup fed from a stream of stamped transforms. Each child frame
// has exactly one parent; the latest parent reported wins.
type TransformBuffer struct {
	mu            sync.RWMutex
	clock         clock.Clock
	cacheDuration time.Duration
	maxAge        time.Duration
	links         map[string]*link
	frames        map[string]struct{}
}

// NewTransformBuffer returns an empty buffer. A non-zero maxAge makes latest-time lookups fail
// with Extrapolation when any non-static link in the chain is older than maxAge.
func NewTransformBuffer(clk clock.Clock, maxAge time.Duration) *TransformBuffer {
	if clk == nil {
		clk = clock.New()
	}
	return &TransformBuffer{
		clock:         clk,
		cacheDuration: DefaultCacheDuration,
		maxAge:        maxAge,
		links:         map[string]*link{},
		frames:        map[string]struct{}{},
	}
}

// CleanFrameName strips the leading slash older publishers put on frame ids.
func CleanFrameName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "/")
}

// SetTransform inserts a transform into the buffer.
func (tb *TransformBuffer) SetTransform(tf StampedTransform) error {
	tf.Parent = CleanFrameName(tf.Parent)
	tf.Child = CleanFrameName(tf.Child)
	if tf.Parent == "" || tf.Child == "" {
		return errors.Errorf("transform must name both frames, got parent %q child %q", tf.Parent, tf.Child)
	}
	if tf.Parent == tf.Child {
		return errors.Errorf("frame %q cannot be its own parent", tf.Child)
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.frames[tf.Parent] = struct{}{}
	tb.frames[tf.Child] = struct{}{}

	l, ok := tb.links[tf.Child]
	if !ok || l.parent != tf.Parent || l.static != tf.Static {
		tb.links[tf.Child] = &link{parent: tf.Parent, static: tf.Static, samples: []StampedTransform{tf}}
		return nil
	}
	if tf.Static {
		l.samples = []StampedTransform{tf}
		return nil
	}

	// insert in stamp order; publishers are usually in order so this is a short walk
	idx := len(l.samples)
	for idx > 0 && l.samples[idx-1].Stamp.After(tf.Stamp) {
		idx--
	}
	l.samples = append(l.samples, StampedTransform{})
	copy(l.samples[idx+1:], l.samples[idx:])
	l.samples[idx] = tf

	newest := l.samples[len(l.samples)-1].Stamp
	drop := 0
	for drop < len(l.samples)-1 && newest.Sub(l.samples[drop].Stamp) > tb.cacheDuration {
		drop++
	}
	l.samples = l.samples[drop:]
	return nil
}

// Frames returns the names of every frame the buffer has seen.
func (tb *TransformBuffer) Frames() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	names := make([]string, 0, len(tb.frames))
	for name := range tb.frames {
		names = append(names, name)
	}
	return names
}

// Lookup returns the pose of source expressed in target.
func (tb *TransformBuffer) Lookup(ctx context.Context, target, source string, at time.Time) (spatialmath.Pose, error) {
	if err := ctx.Err(); err != nil {
		return spatialmath.Pose{}, err
	}
	target = CleanFrameName(target)
	source = CleanFrameName(source)

	tb.mu.RLock()
	defer tb.mu.RUnlock()

	for _, name := range []string{target, source} {
		if _, ok := tb.frames[name]; !ok {
			return spatialmath.Pose{}, NewFrameNotFoundError(target, source, name)
		}
	}
	if target == source {
		return spatialmath.NewZeroPose(), nil
	}

	sourceChain := tb.traceback(source)
	targetChain := tb.traceback(target)
	inTarget := make(map[string]int, len(targetChain))
	for i, name := range targetChain {
		inTarget[name] = i
	}
	ancestor := ""
	sourceDepth := -1
	for i, name := range sourceChain {
		if _, ok := inTarget[name]; ok {
			ancestor = name
			sourceDepth = i
			break
		}
	}
	if sourceDepth < 0 {
		return spatialmath.Pose{}, NewDisconnectedError(target, source)
	}

	ancestorToSource, err := tb.compose(target, source, sourceChain[:sourceDepth], at)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	ancestorToTarget, err := tb.compose(target, source, targetChain[:inTarget[ancestor]], at)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	return spatialmath.Compose(spatialmath.PoseInverse(ancestorToTarget), ancestorToSource), nil
}

// traceback returns the frame followed by each of its parents up to the root.
func (tb *TransformBuffer) traceback(frame string) []string {
	chain := []string{frame}
	seen := map[string]struct{}{frame: {}}
	for {
		l, ok := tb.links[frame]
		if !ok {
			return chain
		}
		if _, loop := seen[l.parent]; loop {
			return chain
		}
		frame = l.parent
		seen[frame] = struct{}{}
		chain = append(chain, frame)
	}
}

// compose returns the pose of frames[0] in the parent of the last frame in frames.
func (tb *TransformBuffer) compose(target, source string, frames []string, at time.Time) (spatialmath.Pose, error) {
	acc := spatialmath.NewZeroPose()
	for _, frame := range frames {
		pose, err := tb.sample(target, source, tb.links[frame], at)
		if err != nil {
			return spatialmath.Pose{}, err
		}
		acc = spatialmath.Compose(pose, acc)
	}
	return acc, nil
}

func (tb *TransformBuffer) sample(target, source string, l *link, at time.Time) (spatialmath.Pose, error) {
	if l.static {
		return l.samples[0].Pose, nil
	}
	oldest := l.samples[0]
	newest := l.samples[len(l.samples)-1]

	if at.IsZero() {
		if tb.maxAge > 0 && tb.clock.Since(newest.Stamp) > tb.maxAge {
			return spatialmath.Pose{}, NewExtrapolationError(target, source,
				"latest transform "+newest.Parent+"->"+newest.Child+" is older than "+tb.maxAge.String())
		}
		return newest.Pose, nil
	}
	if at.Before(oldest.Stamp) || at.After(newest.Stamp) {
		return spatialmath.Pose{}, NewExtrapolationError(target, source,
			"requested time "+at.Format(time.RFC3339Nano)+" is outside the buffered range of "+newest.Parent+"->"+newest.Child)
	}
	for i := 1; i < len(l.samples); i++ {
		if !l.samples[i].Stamp.Before(at) {
			return interpolate(l.samples[i-1], l.samples[i], at), nil
		}
	}
	return newest.Pose, nil
}

func interpolate(before, after StampedTransform, at time.Time) spatialmath.Pose {
	span := after.Stamp.Sub(before.Stamp)
	if span <= 0 {
		return after.Pose
	}
	ratio := float64(at.Sub(before.Stamp)) / float64(span)
	p0, p1 := before.Pose.Point(), after.Pose.Point()
	point := p0.Add(p1.Sub(p0).Mul(ratio))

	q0, q1 := before.Pose.Orientation(), after.Pose.Orientation()
	if q0.Real*q1.Real+q0.Imag*q1.Imag+q0.Jmag*q1.Jmag+q0.Kmag*q1.Kmag < 0 {
		q1 = spatialmath.Flip(q1)
	}
	q := quat.Add(quat.Scale(1-ratio, q0), quat.Scale(ratio, q1))
	return spatialmath.NewPose(point, q)
}
