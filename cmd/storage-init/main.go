package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

type tableCreator interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queueCreator interface {
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// Provisions the slots table and the task event queue used by the API
// server. Existing resources are left untouched.
func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	table := os.Getenv("SLOTS_TABLE")
	queue := os.Getenv("EVENTS_QUEUE")
	if table == "" && queue == "" {
		log.Fatal("nothing to create: set SLOTS_TABLE and/or EVENTS_QUEUE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if table != "" {
		svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
		if err != nil {
			log.Fatalf("tables client: %v", err)
		}
		created, err := ensureTable(ctx, svc.NewClient(table))
		if err != nil {
			log.Fatalf("create table %s: %v", table, err)
		}
		log.WithFields(log.Fields{"table": table, "created": created}).Info("slots table ready")
	}

	if queue != "" {
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, queue, nil)
		if err != nil {
			log.Fatalf("queue client: %v", err)
		}
		created, err := ensureQueue(ctx, q)
		if err != nil {
			log.Fatalf("create queue %s: %v", queue, err)
		}
		log.WithFields(log.Fields{"queue": queue, "created": created}).Info("events queue ready")
	}
}

func ensureTable(ctx context.Context, c tableCreator) (bool, error) {
	if _, err := c.CreateTable(ctx, nil); err != nil {
		if hasErrorCode(err, string(aztables.TableAlreadyExists)) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func ensureQueue(ctx context.Context, c queueCreator) (bool, error) {
	if _, err := c.Create(ctx, nil); err != nil {
		if hasErrorCode(err, queueAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func hasErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
