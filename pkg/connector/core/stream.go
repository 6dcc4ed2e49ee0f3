package core

import (
	"context"

	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// Batch groups a record stream into batches of at most batchSize records.
// A batch never mixes tables. The stream's terminal error, if any, is
// forwarded after the last batch.
func Batch(ctx context.Context, stream *RecordStream, batchSize int) *BatchStream {
	if batchSize <= 0 {
		batchSize = 1
	}
	batchesChan := make(chan []*pool.Record, 4)
	errorsChan := make(chan error, 1)

	go func() {
		defer close(batchesChan)
		defer close(errorsChan)

		send := func(batch []*pool.Record) bool {
			select {
			case batchesChan <- batch:
				return true
			case <-ctx.Done():
				return false
			}
		}

		batch := make([]*pool.Record, 0, batchSize)
		for record := range stream.Records {
			if len(batch) > 0 && (len(batch) >= batchSize || batch[0].Metadata.Table != record.Metadata.Table) {
				if !send(batch) {
					return
				}
				batch = make([]*pool.Record, 0, batchSize)
			}
			batch = append(batch, record)
		}
		if len(batch) > 0 && !send(batch) {
			return
		}
		if err, ok := <-stream.Errors; ok && err != nil {
			errorsChan <- err
		}
	}()

	return &BatchStream{Batches: batchesChan, Errors: errorsChan}
}

// ConsumeRecords calls fn for every record of stream until the stream ends.
// Records already emitted are delivered before the producer's terminal
// error is returned. It returns the first error from fn, the producer or ctx.
func ConsumeRecords(ctx context.Context, stream *RecordStream, fn func(*pool.Record) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "write cancelled")
		}
		select {
		case record, ok := <-stream.Records:
			if !ok {
				return drainError(ctx, stream.Errors)
			}
			if err := fn(record); err != nil {
				return err
			}
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "write cancelled")
		}
	}
}

// ConsumeBatches is ConsumeRecords for batch streams.
func ConsumeBatches(ctx context.Context, stream *BatchStream, fn func([]*pool.Record) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "write cancelled")
		}
		select {
		case batch, ok := <-stream.Batches:
			if !ok {
				return drainError(ctx, stream.Errors)
			}
			if err := fn(batch); err != nil {
				return err
			}
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "write cancelled")
		}
	}
}

func drainError(ctx context.Context, errs <-chan error) error {
	if errs != nil {
		select {
		case err, ok := <-errs:
			if ok && err != nil {
				return err
			}
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "write cancelled")
	}
	return nil
}
