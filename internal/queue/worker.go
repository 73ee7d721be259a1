package queue

import (
	"fmt"
	"runtime/debug"

	"github.com/voicemimic/voice-compiler/internal/logger"
	"github.com/voicemimic/voice-compiler/internal/pipeline"
	"github.com/voicemimic/voice-compiler/internal/types"
)

// WorkerPool manages a pool of workers processing compile jobs. Jobs for
// different sessions run in parallel; the pipeline manager rejects a second
// concurrent job for the same session.
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	manager     *pipeline.Manager
	hub         *Hub
	log         *logger.Logger
}

func NewWorkerPool(workerCount int, manager *pipeline.Manager, log *logger.Logger) *WorkerPool {
	return &WorkerPool{
		jobQueue:    make(chan *Job, 100),
		workerCount: workerCount,
		manager:     manager,
		hub:         NewHub(),
		log:         log,
	}
}

// Hub exposes job status updates for websocket subscribers.
func (wp *WorkerPool) Hub() *Hub {
	return wp.hub
}

// Reserve marks the session as compiling before any of its input files are
// staged. The pool releases the reservation when the job finishes.
func (wp *WorkerPool) Reserve(sessionID string) error {
	return wp.manager.Reserve(sessionID)
}

// Release frees a reservation whose job was never enqueued.
func (wp *WorkerPool) Release(sessionID string) {
	wp.manager.Release(sessionID)
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	wp.log.WithField("workers", wp.workerCount).Info("starting worker pool")
	for i := 0; i < wp.workerCount; i++ {
		go wp.worker(i)
	}
}

// Stop closes the queue; workers exit after draining it.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
}

// Enqueue adds a compile job to the queue. The caller must hold the session
// reservation (Reserve); the pool releases it when the job finishes.
func (wp *WorkerPool) Enqueue(job *Job) {
	wp.publish(job)
	wp.jobQueue <- job
	wp.log.WithSession(job.SessionID).WithField("files", len(job.Files)).Info("compile job enqueued")
}

func (wp *WorkerPool) worker(id int) {
	for job := range wp.jobQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.log.WithSession(job.SessionID).WithField("panic", r).
						Error("worker panic\n" + string(debug.Stack()))
					wp.finish(job, nil, fmt.Errorf("internal error while compiling session"))
				}
			}()
			wp.processJob(id, job)
		}()
	}
}

func (wp *WorkerPool) processJob(workerID int, job *Job) {
	defer wp.manager.Release(job.SessionID)

	slog := wp.log.WithSession(job.SessionID).WithField("worker", workerID)
	slog.Info("processing compile job")

	job.Status = types.StatusProcessing
	wp.publish(job)

	artifact, err := wp.manager.ProcessReserved(job.ctx, job.SessionID, job.Files)
	if err != nil {
		slog.WithField("error", err.Error()).Warn("compile job failed")
		wp.finish(job, nil, err)
		return
	}

	slog.WithField("bytes", artifact.ByteSize).Info("compile job completed")
	wp.finish(job, artifact, nil)
}

// finish records the terminal state exactly once and releases the waiter.
func (wp *WorkerPool) finish(job *Job, artifact *types.CompiledArtifact, err error) {
	select {
	case <-job.done:
		return
	default:
	}

	job.Artifact = artifact
	job.Err = err
	if err != nil {
		job.Status = types.StatusFailed
	} else {
		job.Status = types.StatusCompleted
	}
	close(job.done)
	wp.publish(job)
}

func (wp *WorkerPool) publish(job *Job) {
	u := types.JobUpdate{
		SessionID: job.SessionID,
		Status:    job.Status,
	}
	if job.Err != nil {
		u.Error = job.Err.Error()
	}
	if job.Artifact != nil {
		u.Artifact = job.Artifact.Key
	}
	wp.hub.Publish(u)
}
