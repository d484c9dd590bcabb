package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/convtrack-backend/pkg/auth"
	"github.com/angelmondragon/convtrack-backend/pkg/config"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "admin-token"})

	_ = godotenv.Load()

	member := flag.String("member", "", "member id embedded in the token (random when empty)")
	role := flag.String("role", string(enums.MemberRoleAdmin), "member role: admin|operator|member")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	parsedRole, err := enums.ParseMemberRole(*role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -role: %v\n", err)
		os.Exit(1)
	}
	memberID := *member
	if memberID == "" {
		memberID = uuid.NewString()
	}

	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		MemberID: memberID,
		Role:     parsedRole,
	})
	if err != nil {
		logg.Error(logg.WithMemberID(ctx, memberID), "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
