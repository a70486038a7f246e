package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"yuzu/internal/config"
	"yuzu/internal/model/auth"
	"yuzu/internal/pkg/id"
	"yuzu/internal/pkg/logger"
	"yuzu/internal/pkg/mongodb"
	"yuzu/internal/pkg/password"
)

func main() {
	// 1. 加载配置（与 cmd/root.go 保持一致的搜索路径）
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.yuzu")

	viper.SetEnvPrefix("YUZU")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		os.Exit(1)
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	// 2. 连接 MongoDB
	client, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect mongo")
	}
	defer func() {
		_ = client.Close(context.Background())
	}()

	users := client.Collection("users")
	ctx := context.Background()

	// 3. 读取环境变量或使用默认值
	username := os.Getenv("INIT_ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	passwordPlain := os.Getenv("INIT_ADMIN_PASSWORD")
	if passwordPlain == "" {
		passwordPlain = "admin123"
	}

	// 4. 已存在则提升为 admin，否则创建
	var existing auth.User
	err = users.FindOne(ctx, bson.M{"username": username}).Decode(&existing)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			log.Fatal().Err(err).Msg("failed to query user")
		}

		hashed, err := password.Hash(passwordPlain)
		if err != nil {
			log.Fatal().Err(err).Msg("hash password failed")
		}

		now := time.Now()
		user := &auth.User{
			ID:        id.New(),
			Username:  username,
			Password:  hashed,
			Role:      auth.RoleAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := users.InsertOne(ctx, user); err != nil {
			log.Fatal().Err(err).Msg("create admin user failed")
		}
		log.Info().Str("username", username).Msg("admin user created")
	} else {
		update := bson.M{
			"$set": bson.M{
				"role":       auth.RoleAdmin,
				"updated_at": time.Now(),
			},
		}
		if _, err := users.UpdateOne(ctx, bson.M{"_id": existing.ID}, update); err != nil {
			log.Fatal().Err(err).Msg("update admin user failed")
		}
		log.Info().Str("username", username).Msg("admin user promoted")
	}

	fmt.Printf("Admin initialized: username=%s password=%s role=admin\n",
		username, passwordPlain)
}
