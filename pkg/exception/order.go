package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidRequest  = errors.New("order: invalid request")
	ErrOrderMissingIdentity = errors.New("order: order_id or cl_ord_id required")
	ErrOrderRejected        = errors.New("order: rejected by venue")
	ErrOrderAPIStatus       = errors.New("order: api status is not ok")
)
