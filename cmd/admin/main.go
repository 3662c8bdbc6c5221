package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cvlm/internal/auth"
	"cvlm/internal/config"
	"cvlm/internal/database"
	"cvlm/internal/repository"
	"cvlm/internal/usecase"
)

// admin 用于开通账号、调整额度并签发访问令牌。
func main() {
	var (
		email   = flag.String("email", "", "账号邮箱（必填）")
		name    = flag.String("name", "", "显示名称（可选）")
		pdf     = flag.Int("pdf", -1, "设置 PDF 额度，负数表示保持默认或现有值")
		text    = flag.Int("text", -1, "设置文本额度，负数表示保持默认或现有值")
		issue   = flag.Bool("token", false, "为该账号签发访问令牌（需要私钥）")
		dbHost  = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort  = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName  = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser  = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass  = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	e := strings.ToLower(strings.TrimSpace(*email))
	if e == "" {
		log.Fatal("missing required flag: --email")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbCfg, err := loadDatabaseConfig(cfg.Database, *dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	accounts := usecase.NewAccountService(
		repository.NewUserRepository(db),
		cfg.Generation.DefaultPDFCredits,
		cfg.Generation.DefaultTextCredits,
		logger,
	)

	user, created, err := accounts.Provision(ctx, e, strings.TrimSpace(*name), *pdf, *text)
	if err != nil {
		log.Fatalf("provision account: %v", err)
	}

	if created {
		fmt.Printf("已创建账号：\n")
	} else {
		fmt.Printf("账号已存在，额度已更新：\n")
	}
	fmt.Printf("用户 ID: %s\n", user.ID)
	fmt.Printf("邮箱: %s\n", user.Email)
	fmt.Printf("PDF 额度: %d\n", user.PDFCredits)
	fmt.Printf("文本额度: %d\n", user.TextCredits)

	if !*issue {
		return
	}
	authService, err := auth.LoadFromConfig(cfg.Auth, true)
	if err != nil {
		log.Fatalf("load auth keys: %v", err)
	}
	token, expires, err := authService.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Printf("访问令牌（%s 过期）：\n%s\n", expires.UTC().Format(time.RFC3339), token)
}

// loadDatabaseConfig 以环境配置为基础，命令行参数优先。
func loadDatabaseConfig(base config.DatabaseConfig, host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	cfg := base
	if v := strings.TrimSpace(host); v != "" {
		cfg.Host = v
	}
	if port > 0 {
		cfg.Port = port
	}
	if v := strings.TrimSpace(name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(user); v != "" {
		cfg.User = v
	}
	if password != "" {
		cfg.Password = password
	}
	if v := strings.TrimSpace(sslmode); v != "" {
		cfg.SSLMode = v
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return config.DatabaseConfig{}, errors.New("database port " + strconv.Itoa(cfg.Port) + " is out of range")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(cfg.User) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	return cfg, nil
}
