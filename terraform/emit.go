package terraform

import (
	"fmt"
	"regexp"
	"strings"

	"pkt.systems/svckit/setting"
)

var invalidAddressChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// resourceName derives a valid Terraform resource name from an arbitrary
// identifier.
func resourceName(raw string) string {
	name := invalidAddressChars.ReplaceAllString(raw, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "svckit"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "r_" + name
	}
	return name
}

// EmitDynamoTable adds the DynamoDB table the cache driver expects: string
// hash key "k" with TTL enabled on the "exp" attribute.
func EmitDynamoTable(doc *Document, table string) error {
	if table == "" {
		return fmt.Errorf("terraform: dynamodb table name required")
	}
	return doc.AddResource("aws_dynamodb_table", resourceName(table), map[string]any{
		"name":         table,
		"billing_mode": "PAY_PER_REQUEST",
		"hash_key":     "k",
		"attribute": []map[string]any{
			{"name": "k", "type": "S"},
		},
		"ttl": map[string]any{
			"attribute_name": "exp",
			"enabled":        true,
		},
	})
}

// EmitS3Bucket adds an S3 bucket with public access blocked.
func EmitS3Bucket(doc *Document, bucket string) error {
	if bucket == "" {
		return fmt.Errorf("terraform: s3 bucket name required")
	}
	name := resourceName(bucket)
	if err := doc.AddResource("aws_s3_bucket", name, map[string]any{
		"bucket": bucket,
	}); err != nil {
		return err
	}
	return doc.AddResource("aws_s3_bucket_public_access_block", name, map[string]any{
		"bucket":                  fmt.Sprintf("${aws_s3_bucket.%s.id}", name),
		"block_public_acls":       true,
		"block_public_policy":     true,
		"ignore_public_acls":      true,
		"restrict_public_buckets": true,
	})
}

// EmitSNSTopic adds an SNS topic.
func EmitSNSTopic(doc *Document, topic string) error {
	if topic == "" {
		return fmt.Errorf("terraform: sns topic name required")
	}
	return doc.AddResource("aws_sns_topic", resourceName(topic), map[string]any{
		"name": topic,
	})
}

// EmitSESIdentity adds a verified SES sending identity for a domain or
// address.
func EmitSESIdentity(doc *Document, identity string) error {
	if identity == "" {
		return fmt.Errorf("terraform: ses identity required")
	}
	return doc.AddResource("aws_sesv2_email_identity", resourceName(identity), map[string]any{
		"email_identity": identity,
	})
}

// EmitFromSettings inspects a settings URL and adds the AWS resources its
// driver depends on. Schemes without AWS infrastructure (mem, redis, smtp,
// log and friends) add nothing and return false.
func EmitFromSettings(doc *Document, rawURL string) (bool, error) {
	u, err := setting.Parse(rawURL)
	if err != nil {
		return false, err
	}
	u.DelegateQuery()
	switch u.Scheme() {
	case "dynamodb", "aws-dynamodb":
		table := u.Host()
		if table == "" {
			table, _ = u.SplitPath()
		}
		return true, EmitDynamoTable(doc, table)
	case "s3", "aws":
		bucket := u.Host()
		if bucket == "" {
			bucket, _ = u.SplitPath()
		}
		return true, EmitS3Bucket(doc, bucket)
	case "sns", "aws-sns":
		// Direct-to-number SMS needs no topic; only topic-addressed URLs
		// carry infrastructure.
		topic := u.String("topic", u.Host())
		if topic == "" {
			return false, nil
		}
		return true, EmitSNSTopic(doc, topic)
	case "ses", "aws-ses":
		identity := u.String("identity", u.Host())
		if identity == "" {
			return false, nil
		}
		return true, EmitSESIdentity(doc, identity)
	default:
		return false, nil
	}
}
