package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/activity"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/cloud"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/config"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/emergency"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/threshold"
)

type Settings struct {
	StatusTopics         []string
	StatusPublishPrefix  string
	Workers              int
	QueueSize            int
	SubscriptionRefresh  time.Duration
	ConfigCacheTTL       time.Duration
	ScheduleTolerance    time.Duration
	Activity             activity.Config
	Retrigger            threshold.Retrigger
	EmergencyScope       emergency.Scope
	DefaultContainmentID int64
	AuditIntervalSaves   bool
}

// SettingsFromConfig reads the engine settings from the loaded config.
func SettingsFromConfig() (Settings, error) {
	retrigger, err := threshold.ParseRetrigger(config.ThresholdRetrigger())
	if err != nil {
		return Settings{}, err
	}
	scope, err := emergency.ParseScope(config.EmergencyScope())
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		StatusTopics:        config.MQTTStatusTopics(),
		StatusPublishPrefix: config.MQTTStatusPublishPrefix(),
		Workers:             config.IngestWorkers(),
		QueueSize:           config.IngestQueueSize(),
		SubscriptionRefresh: config.SubscriptionRefresh(),
		ConfigCacheTTL:      config.ConfigCacheTTL(),
		ScheduleTolerance:   config.ScheduleTolerance(),
		Activity: activity.Config{
			SweepInterval:  config.ActivitySweepInterval(),
			OnlineTimeout:  config.ActivityOnlineTimeout(),
			OfflineTimeout: config.ActivityOfflineTimeout(),
		},
		Retrigger:            retrigger,
		EmergencyScope:       scope,
		DefaultContainmentID: config.DefaultContainmentID(),
		AuditIntervalSaves:   config.AuditIntervalSaves(),
	}
	if s.Activity.OnlineTimeout >= s.Activity.OfflineTimeout {
		return Settings{}, fmt.Errorf("activity online timeout %s must be below offline timeout %s",
			s.Activity.OnlineTimeout, s.Activity.OfflineTimeout)
	}
	return s, nil
}

// CloudFromConfig builds the AWS collaborators when USE_CLOUD_SERVICES is
// set. Otherwise notifications are only logged and nothing is mirrored.
func CloudFromConfig(ctx context.Context) (Cloud, error) {
	if !config.UseCloudServices() {
		log.Info().Msg("cloud services disabled, notifications go to the log")
		return Cloud{Notifier: cloud.LogNotifier{}}, nil
	}

	var out Cloud
	region := config.AWSRegion()

	if arn := config.SNSTopicArn(); arn != "" {
		sns, err := cloud.NewSNSClient(ctx, region, arn)
		if err != nil {
			return Cloud{}, fmt.Errorf("sns: %w", err)
		}
		out.Notifier = sns
	} else {
		log.Warn().Msg("AWS_SNS_TOPIC_ARN not set, notifications go to the log")
		out.Notifier = cloud.LogNotifier{}
	}

	if table := config.DynamoDBTable(); table != "" {
		mirror, err := cloud.NewSampleMirror(ctx, region, table)
		if err != nil {
			return Cloud{}, fmt.Errorf("dynamodb: %w", err)
		}
		out.Mirror = mirror
	}

	if bucket := config.S3Bucket(); bucket != "" {
		archive, err := cloud.NewEventArchive(ctx, region, bucket)
		if err != nil {
			return Cloud{}, fmt.Errorf("s3: %w", err)
		}
		out.Archive = archive
	}

	log.Info().Str("region", region).
		Bool("mirror", out.Mirror != nil).
		Bool("archive", out.Archive != nil).
		Msg("cloud services enabled")
	return out, nil
}
