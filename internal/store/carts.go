package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const deleteCartItemsByUser = `DELETE FROM cart_items WHERE user_id = $1`

// DeleteCartItemsByUser clears the user's cart. Runs inside the settlement
// transaction so cart lines disappear exactly when the orders settle.
func (q *Queries) DeleteCartItemsByUser(ctx context.Context, userID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteCartItemsByUser, userID)
	return err
}
