package stillsuit_test

import (
	"context"
	"fmt"

	"github.com/seb7887/stillsuit"
)

type User struct {
	ID    string `db:"id"`
	Email string `db:"email"`
}

func Example() {
	identity := stillsuit.NewIdentity(
		func(u *User) string { return u.ID },
		func(u *User, id string) { u.ID = id },
	)
	repo, err := stillsuit.NewMemoryConnector(identity)
	if err != nil {
		panic(err)
	}
	ctx := context.Background()

	if _, err := repo.Add(ctx, &User{ID: "u1", Email: "paul@arrakis.example"}); err != nil {
		panic(err)
	}

	user, err := repo.GetOne(ctx, stillsuit.Eq("email", "paul@arrakis.example"))
	if err != nil {
		panic(err)
	}
	fmt.Println(user.ID)

	total, err := repo.Count(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println(total)
	// Output:
	// u1
	// 1
}
