package config

import "os"

type MinioConfig struct {
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucket_name"`
}

func (c *MinioConfig) applyEnv() {
	envString("MINIO_ACCESS_KEY", &c.AccessKey)
	envString("MINIO_SECRET_KEY", &c.SecretKey)
	envString("MINIO_ENDPOINT", &c.Endpoint)
	envString("MINIO_REGION", &c.Region)
	envString("MINIO_BUCKET_NAME", &c.BucketName)
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" || v == "1" {
		c.UseSSL = true
	}
}
