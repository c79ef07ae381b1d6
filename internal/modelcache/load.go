package modelcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"iotml/internal/engine"
)

type loadResult struct {
	model engine.Model
	err   error
}

// load reads and validates one artifact, collapsing concurrent loads of the
// same id when deduplication is enabled.
func (c *Cache) load(ctx context.Context, modelID string, kind engine.Kind, path string) (engine.Model, error) {
	if c.group == nil {
		return c.loadWithTimeout(ctx, modelID, kind, path)
	}
	v, err, _ := c.group.Do(modelID, func() (any, error) {
		return c.loadWithTimeout(ctx, modelID, kind, path)
	})
	if err != nil {
		return nil, err
	}
	m := v.(engine.Model)
	if m.Kind() != kind {
		return nil, &TypeMismatchError{ModelID: modelID, Want: kind, Got: m.Kind()}
	}
	return m, nil
}

// loadWithTimeout runs the loader on its own goroutine so the deadline holds
// even when the read blocks.
func (c *Cache) loadWithTimeout(ctx context.Context, modelID string, kind engine.Kind, path string) (engine.Model, error) {
	start := time.Now()
	ch := make(chan loadResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- loadResult{err: fmt.Errorf("panic during load: %v", r)}
			}
		}()
		m, err := c.loadOnce(ctx, modelID, kind, path)
		ch <- loadResult{model: m, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var res loadResult
	select {
	case res = <-ch:
	case <-timer.C:
		res.err = &LoadTimeoutError{ModelID: modelID, Timeout: c.timeout}
		c.log.Error().Str("model_id", modelID).Dur("timeout", c.timeout).Msg("model loading timed out")
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil && !isClassified(res.err) && !errors.Is(res.err, context.Canceled) && !errors.Is(res.err, context.DeadlineExceeded) {
		c.log.Error().Err(res.err).Str("model_id", modelID).Msg("failed to load model")
		res.err = &LoadFailureError{ModelID: modelID, Err: res.err, Sanitized: c.production}
	}
	loadDuration.WithLabelValues(errorLabel(res.err)).Observe(time.Since(start).Seconds())
	if res.err != nil {
		return nil, res.err
	}
	c.log.Info().Str("model_id", modelID).Str("kind", string(kind)).Msg("loaded model")
	return res.model, nil
}

// loadOnce performs the read and the variant check.
func (c *Cache) loadOnce(ctx context.Context, modelID string, kind engine.Kind, path string) (engine.Model, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{ModelID: modelID}
	}
	m, err := c.loader(ctx, path)
	if err != nil {
		var km *engine.KindMismatchError
		switch {
		case errors.As(err, &km):
			return nil, &TypeMismatchError{ModelID: modelID, Want: kind, Got: km.Got}
		case errors.Is(err, os.ErrNotExist):
			return nil, &NotFoundError{ModelID: modelID}
		}
		return nil, err
	}
	if m == nil {
		return nil, errors.New("loader returned no model")
	}
	if m.Kind() != kind {
		c.log.Error().Str("model_id", modelID).Str("expected", string(kind)).Str("got", string(m.Kind())).Msg("model type mismatch")
		return nil, &TypeMismatchError{ModelID: modelID, Want: kind, Got: m.Kind()}
	}
	return m, nil
}

func isClassified(err error) bool {
	return IsNotFound(err) || IsTypeMismatch(err) || IsLoadTimeout(err) || IsLoadFailure(err) || IsInvalidPath(err)
}
