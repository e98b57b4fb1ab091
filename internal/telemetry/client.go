// Package telemetry connects the mission to the MQTT backend: events out,
// camera frames and control commands in.
package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MQTT parameters
const (
	QoS      = 1 // QoS 2 isn't supported in GCP
	Retain   = false
	Username = "unused" // always this value in GCP
)

type ClientConfig struct {
	Broker         string
	DeviceID       string
	PrivateKeyPath string
	Algorithm      string
	ProjectID      string
	Region         string
	RegistryID     string
}

// NewClient connects to the broker, retrying until connected or ctx is done.
// With a private key the password is a signed JWT, as Cloud IoT expects.
func NewClient(ctx context.Context, cfg ClientConfig, log *zap.Logger) (mqtt.Client, error) {
	serverAddress := cfg.Broker
	if serverAddress == "" {
		return nil, errors.New("MQTT broker address is empty")
	}

	clientID := cfg.DeviceID
	opts := mqtt.NewClientOptions().
		AddBroker(serverAddress).
		SetProtocolVersion(4) // Use MQTT 3.1.1

	if cfg.PrivateKeyPath != "" {
		keyData, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, errors.WithMessage(err, "Could not read private key")
		}
		pass, err := signJWT(keyData, cfg.Algorithm, cfg.ProjectID, time.Now())
		if err != nil {
			return nil, err
		}
		clientID = fmt.Sprintf(
			"projects/%s/locations/%s/registries/%s/devices/%s",
			cfg.ProjectID, cfg.Region, cfg.RegistryID, cfg.DeviceID)
		opts.SetUsername(Username).SetPassword(pass)
	}
	if strings.HasPrefix(serverAddress, "ssl://") || strings.HasPrefix(serverAddress, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetClientID(clientID)

	log.Info("connecting MQTT", zap.String("address", serverAddress), zap.String("client_id", clientID))
	client := mqtt.NewClient(opts)

	for {
		tok := client.Connect()
		if !tok.WaitTimeout(5 * time.Second) {
			log.Warn("MQTT connection timeout")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			continue
		}
		if err := tok.Error(); err != nil {
			return nil, errors.WithMessage(err, "MQTT connect failed")
		}
		log.Info("MQTT connected")
		return client, nil
	}
}

// signJWT generates the JWT used as the MQTT password.
func signJWT(keyData []byte, algorithm, audience string, now time.Time) (string, error) {
	if algorithm == "" {
		algorithm = "RS256"
	}

	var key interface{}
	var err error
	switch algorithm {
	case "RS256":
		key, err = jwt.ParseRSAPrivateKeyFromPEM(keyData)
	case "ES256":
		key, err = jwt.ParseECPrivateKeyFromPEM(keyData)
	default:
		return "", errors.Errorf("Unknown algorithm: %s", algorithm)
	}
	if err != nil {
		return "", errors.WithMessage(err, "Could not parse private key")
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(algorithm), &jwt.StandardClaims{
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(24 * time.Hour).Unix(),
		Audience:  audience,
	})
	pass, err := token.SignedString(key)
	if err != nil {
		return "", errors.WithMessage(err, "Could not sign JWT")
	}
	return pass, nil
}
