package apireq

import (
	"context"
	"strings"

	"github.com/ambiyansyah-risyal/apireq/internal/singleflight"
)

// SingleFlightController applies the single-flight policy of each call.
// Calls share a key when method, base address and path match; query and
// body are ignored.
type SingleFlightController struct {
	lanes    *singleflight.Lanes
	latest   *singleflight.Latest
	occupied *singleflight.Group
	obs      *observer
}

func NewSingleFlightController() *SingleFlightController {
	return &SingleFlightController{
		lanes:    singleflight.NewLanes(),
		latest:   singleflight.NewLatest(ErrSuperseded),
		occupied: singleflight.New(),
		obs:      &observer{debug: DefaultDebugConfig()},
	}
}

// Key returns the single-flight key of req.
func (s *SingleFlightController) Key(req *Request) string {
	return req.Method + "::" + strings.TrimRight(req.BaseURL, "/") + "/" + strings.TrimLeft(req.URL, "/")
}

// Request prepares call to run dispatch under its request's policy. It
// returns an error only for a PREV overlap, in which case nothing is
// dispatched. The caller starts the call afterwards.
func (s *SingleFlightController) Request(call *Call, dispatch DispatchFunc) error {
	req := call.req
	run := func(ctx context.Context) (*Response, error) {
		return dispatch(ctx, req)
	}

	if !req.Options.Single {
		call.task = run
		return nil
	}

	key := s.Key(req)
	policy := req.Options.SingleType

	switch policy {
	case SingleNext:
		token, superseded := s.latest.Supersede(key, call.cancel)
		if superseded {
			s.obs.metrics.RecordSingleFlight(policy, "superseded")
			s.log("Superseded previous call", req, key, policy)
		}
		call.settled(func(*Response, error) { s.latest.Done(key, token) })
		call.task = run

	case SinglePrev:
		release, err := s.occupied.Occupy(key)
		if err != nil {
			s.obs.metrics.RecordSingleFlight(policy, "rejected")
			s.log("Rejected overlapping call", req, key, policy)
			return newSingleFlightRejection(req, key)
		}
		call.settled(func(*Response, error) { release() })
		call.task = run

	default:
		policy = SingleQueue
		ticket := s.lanes.Enqueue(key)
		call.task = func(ctx context.Context) (*Response, error) {
			if err := ticket.Wait(ctx); err != nil {
				s.obs.metrics.RecordSingleFlight(policy, "withdrawn")
				return nil, newCancellationError(ctx)
			}
			defer ticket.Release()
			return run(ctx)
		}
	}

	s.obs.metrics.RecordSingleFlight(policy, "admitted")
	return nil
}

// Lanes reports how many QUEUE lanes are alive.
func (s *SingleFlightController) Lanes() int {
	return s.lanes.Len()
}

// Pending reports how many calls sharing req's key are tracked, counting
// queued QUEUE calls and at most one NEXT and one PREV call.
func (s *SingleFlightController) Pending(req *Request) int {
	key := s.Key(req)
	n := s.lanes.Pending(key)
	if s.occupied.Occupied(key) {
		n++
	}
	if s.latest.Tracked(key) {
		n++
	}
	return n
}

func (s *SingleFlightController) log(msg string, req *Request, key string, policy Single) {
	if s.obs.logs(s.obs.debug.LogSingle) {
		s.obs.logger.Debug(msg, "requestID", req.id, "key", key, "policy", policy.String())
	}
}
