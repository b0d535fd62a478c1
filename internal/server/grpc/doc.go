// Package grpcserver exposes the standard grpc.health.v1 service for the
// connector. Status follows a probe (Redis reachable and the control-plane
// handshake done) and is refreshed on an interval.
//
// Example:
//
//	s := grpcserver.New(func(ctx context.Context) error {
//	    if err := rt.CheckHealth(ctx); err != nil {
//	        return err
//	    }
//	    if !sup.Identified() {
//	        return errors.New("not identified")
//	    }
//	    return nil
//	})
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
