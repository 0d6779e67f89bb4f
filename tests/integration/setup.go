package integration

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type TestInfra struct {
	MongoDB      *mongo.Database
	MongoClient  *mongo.Client
	KafkaBrokers []string
}

// SetupTestInfra starts both backing containers for tests that exercise the
// full pipeline. Containers are cleaned up through t.Cleanup.
func SetupTestInfra(t *testing.T) *TestInfra {
	t.Helper()
	disableRyuk()

	infra := &TestInfra{}
	infra.startMongo(t)
	infra.startKafka(t)
	return infra
}

// SetupMongoInfra starts only the document store container.
func SetupMongoInfra(t *testing.T) *TestInfra {
	t.Helper()
	disableRyuk()

	infra := &TestInfra{}
	infra.startMongo(t)
	return infra
}

// SetupKafkaInfra starts only the broker container.
func SetupKafkaInfra(t *testing.T) *TestInfra {
	t.Helper()
	disableRyuk()

	infra := &TestInfra{}
	infra.startKafka(t)
	return infra
}

// The reaper container needs a docker socket mount that CI runners often
// forbid, t.Cleanup handles teardown instead.
func disableRyuk() {
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}
}

func (infra *TestInfra) startMongo(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:6",
		mongodb.WithUsername("test_user"),
		mongodb.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Waiting for connections").WithStartupTimeout(containerStartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("failed to start mongo container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get mongo connection string: %v", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("failed to connect to mongo: %v", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		t.Fatalf("failed to ping mongo: %v", err)
	}
	t.Cleanup(func() {
		client.Disconnect(ctx)
	})

	infra.MongoClient = client
	infra.MongoDB = client.Database("ratefeed_test")
}

func (infra *TestInfra) startKafka(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("ratefeed-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	infra.KafkaBrokers = brokers
}

// createTopic provisions a topic up front so publishes do not race topic
// auto-creation.
func createTopic(t *testing.T, brokers []string, topic string) {
	t.Helper()

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		t.Fatalf("failed to dial kafka: %v", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		t.Fatalf("failed to get kafka controller: %v", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		t.Fatalf("failed to dial kafka controller: %v", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Fatalf("failed to create topic %s: %v", topic, err)
	}
}
