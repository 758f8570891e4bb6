/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

package keyfind

import (
	"context"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/forensicanalysis/wechatdump/decrypt"
	"github.com/forensicanalysis/wechatdump/process"
)

const maxWorkers = 8

// Search runs the generate-and-test loop: a producer streams candidates
// from memory while workers validate them concurrently against the sample
// page. The first validated key cancels all outstanding work. It returns
// decrypt.ErrKeyNotFound after the finite candidate stream is exhausted;
// scan level timeouts come in through ctx.
func Search(ctx context.Context, mem process.Memory, sample []byte, params decrypt.Parameters, log *logrus.Logger) ([]byte, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	candidates := make(chan Candidate, 64)
	result := make(chan Candidate, 1)

	finder := &Finder{Mem: mem, Params: params, Log: log}

	var scanErr error
	var producerWG sync.WaitGroup
	producerWG.Add(1)
	go func() {
		defer producerWG.Done()
		defer close(candidates)
		if err := finder.Candidates(ctx, candidates); err != nil && !errors.Is(err, context.Canceled) {
			scanErr = err
		}
	}()

	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	log.Debugf("validating candidates with %d workers", workers)

	seen := newKeySet()
	var workerWG sync.WaitGroup
	workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer workerWG.Done()
			for candidate := range candidates {
				if seen.visited(candidate.Key) {
					continue
				}
				if decrypt.ValidateKey(sample, candidate.Key, params) {
					select {
					case result <- candidate:
						cancel()
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		producerWG.Wait()
		workerWG.Wait()
		close(result)
	}()

	if candidate, ok := <-result; ok {
		log.WithFields(logrus.Fields{
			"base":     candidate.Base,
			"offset":   candidate.Offset,
			"anchored": candidate.Anchored,
		}).Debug("candidate validated")
		return candidate.Key, nil
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, decrypt.ErrKeyNotFound
}
