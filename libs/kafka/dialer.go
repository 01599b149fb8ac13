package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/linkedin/goavro"
	"github.com/segmentio/kafka-go"

	appctx "github.com/etruckzm/etruck-go/libs/context"
	errorutils "github.com/etruckzm/etruck-go/libs/errors"
	"github.com/etruckzm/etruck-go/libs/logging"
)

// Writer is the subset of *kafka.Writer used to publish events
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TLSDialer creates a Kafka dialer over TLS from KAFKA_SSL_CERTIFICATE (or
// KAFKA_SSL_CERTIFICATE_LOCATION) and KAFKA_SSL_KEY (or KAFKA_SSL_KEY_LOCATION).
func TLSDialer() (*kafka.Dialer, *x509.Certificate, error) {
	caPEM, err := readFileFromEnvLoc("KAFKA_SSL_CA_LOCATION", false)
	if err != nil {
		return nil, nil, err
	}

	certPEM := []byte(os.Getenv("KAFKA_SSL_CERTIFICATE"))
	if len(certPEM) == 0 {
		certPEM, err = readFileFromEnvLoc("KAFKA_SSL_CERTIFICATE_LOCATION", true)
		if err != nil {
			return nil, nil, err
		}
	}

	keyPEM := []byte(os.Getenv("KAFKA_SSL_KEY"))

	// KAFKA_SSL_CERTIFICATE may carry both the certificate and the key
	if len(certPEM) > 0 && certPEM[0] == '{' {
		var bundle struct {
			Certificate string `json:"certificate"`
			Key         string `json:"key"`
		}
		if err := json.Unmarshal(certPEM, &bundle); err != nil {
			return nil, nil, err
		}
		certPEM = []byte(bundle.Certificate)
		keyPEM = []byte(bundle.Key)
	}

	if len(keyPEM) == 0 {
		keyPEM, err = readFileFromEnvLoc("KAFKA_SSL_KEY_LOCATION", true)
		if err != nil {
			return nil, nil, err
		}
	}

	block, rest := pem.Decode(keyPEM)
	if block == nil || len(rest) > 0 {
		return nil, nil, errors.New("malformed KAFKA_SSL_KEY")
	}

	certificate, err := tls.X509KeyPair(certPEM, pem.EncodeToMemory(block))
	if err != nil {
		return nil, nil, errorutils.Wrap(err, "Could not parse x509 keypair")
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{certificate},
		MinVersion:   tls.VersionTLS12,
	}

	x509Cert, err := x509.ParseCertificate(certificate.Certificate[0])
	if err != nil {
		return nil, nil, errorutils.Wrap(err, "Could not parse certificate")
	}

	if time.Now().After(x509Cert.NotAfter) {
		return nil, nil, errorutils.ErrCertificateExpired
	}

	if len(caPEM) > 0 {
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM(caPEM); !ok {
			return nil, nil, errors.New("could not add custom CA from KAFKA_SSL_CA_LOCATION")
		}
		config.RootCAs = caCertPool
	}

	return &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		TLS:       config,
	}, x509Cert, nil
}

func readFileFromEnvLoc(env string, required bool) ([]byte, error) {
	loc := os.Getenv(env)
	if len(loc) == 0 {
		if !required {
			return []byte{}, nil
		}
		return []byte{}, errors.New(env + " must be passed")
	}
	return os.ReadFile(loc)
}

// InitKafkaWriter creates a writer for topic against brokers (comma separated).
// Without useTLS a plain dialer is used, which is only meant for local development.
func InitKafkaWriter(ctx context.Context, brokers, topic string, useTLS bool) (*kafka.Writer, error) {
	logger := logging.Logger(ctx, "kafka.InitKafkaWriter")

	if brokers == "" {
		return nil, errors.New("no kafka brokers configured")
	}

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	if useTLS {
		d, x509Cert, err := TLSDialer()
		if err != nil {
			return nil, err
		}
		dialer = d
		InstrumentKafka(context.WithValue(ctx, appctx.Kafka509CertCTXKey, x509Cert))
	}

	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:      strings.Split(brokers, ","),
		Balancer:     &kafka.Hash{},
		Dialer:       dialer,
		Topic:        topic,
		BatchTimeout: 1 * time.Second,
		Logger:       kafka.LoggerFunc(logger.Printf),
	}), nil
}

// GenerateCodecs - create a map of codec name to the avro codec
func GenerateCodecs(codecs map[string]string) (map[string]*goavro.Codec, error) {
	res := make(map[string]*goavro.Codec, len(codecs))
	for k, v := range codecs {
		codec, err := goavro.NewCodec(v)
		if err != nil {
			return nil, fmt.Errorf("failed to generate codec %s: %w", k, err)
		}
		res[k] = codec
	}
	return res, nil
}
