package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getAddressByID = `
SELECT id, user_id, receiver_name, phone, address_line1, address_line2,
       city, province, postal_code, country
FROM addresses
WHERE id = $1
`

// GetAddressByID fetches a stored address. Ownership is checked by the caller.
func (q *Queries) GetAddressByID(ctx context.Context, id pgtype.UUID) (Address, error) {
	row := q.db.QueryRow(ctx, getAddressByID, id)
	var a Address
	err := row.Scan(&a.ID, &a.UserID, &a.ReceiverName, &a.Phone, &a.AddressLine1, &a.AddressLine2,
		&a.City, &a.Province, &a.PostalCode, &a.Country)
	return a, err
}
