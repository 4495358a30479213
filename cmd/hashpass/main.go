package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/kusalkrp/bus-tracking-api/internal/auth"
	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

func main() {
	email := flag.String("email", "", "User email (required)")
	password := flag.String("password", "", "Plain-text password (required)")
	role := flag.String("role", string(models.RoleCommuter), "Role: commuter, operator or admin")
	operatorID := flag.String("operator-id", "", "Operator ID (operators only)")
	operatorType := flag.String("operator-type", "", "Operator type: SLTB or Private (operators only)")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Println("Usage: hashpass --email=<email> --password=<password> [--role=operator --operator-id=OP1 --operator-type=SLTB]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if !models.Role(*role).Valid() {
		fmt.Println("Error: role must be 'commuter', 'operator' or 'admin'")
		os.Exit(1)
	}
	if *operatorType != "" && !models.OperatorType(*operatorType).Valid() {
		fmt.Println("Error: operator-type must be 'SLTB' or 'Private'")
		os.Exit(1)
	}
	if models.Role(*role) == models.RoleOperator && *operatorID == "" {
		fmt.Println("Error: operator-id is required for operators")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	fmt.Printf("Hash (store in database):\n%s\n", hash)
	fmt.Println("\nTo insert into database:")
	fmt.Println("INSERT INTO users (email, password_hash, role, operator_id, operator_type)")
	fmt.Printf("VALUES (%s, %s, %s, %s, %s);\n",
		sqlString(*email), sqlString(hash), sqlString(*role), sqlString(*operatorID), sqlString(*operatorType))
}

// sqlString quotes s as a SQL literal; empty strings become NULL
func sqlString(s string) string {
	if s == "" {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
