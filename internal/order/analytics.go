package order

import (
	"time"

	"github.com/gofrs/uuid"
)

const (
	dailyWindowDays   = 7
	monthlyWindowSize = 6
	recentOrdersLimit = 5

	dayFormat   = "2006-01-02"
	monthFormat = "2006-01"
)

type ProductPerformance struct {
	TotalOrders   int     `json:"totalOrders"`
	TotalQuantity int     `json:"totalQuantity"`
	TotalRevenue  float64 `json:"totalRevenue"`
	InStock       int     `json:"inStock"`
}

type TimeBucket struct {
	Period  string  `json:"period"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

type TimeBasedAnalysis struct {
	Daily   []TimeBucket `json:"daily"`
	Monthly []TimeBucket `json:"monthly"`
}

type Analytics struct {
	TotalOrders        int                              `json:"totalOrders"`
	TotalRevenue       float64                          `json:"totalRevenue"`
	AverageOrderValue  float64                          `json:"averageOrderValue"`
	OrdersByStatus     map[Status]int                   `json:"ordersByStatus"`
	RecentOrders       []SellerOrder                    `json:"recentOrders"`
	ProductPerformance map[uuid.UUID]ProductPerformance `json:"productPerformance"`
	TimeBasedAnalysis  TimeBasedAnalysis                `json:"timeBasedAnalysis"`
}

// BuildAnalytics aggregates a seller's filtered order set. It is a pure
// function of its inputs: the single captured now drives every time
// bucket, so repeated calls over the same data yield identical output.
// Orders are bucketed by creation date in now's location. Revenue figures
// are store-scoped subtotals, not global order totals.
func BuildAnalytics(orders []SellerOrder, stock map[uuid.UUID]int, now time.Time) Analytics {
	a := Analytics{
		TotalOrders:        len(orders),
		OrdersByStatus:     make(map[Status]int),
		ProductPerformance: make(map[uuid.UUID]ProductPerformance, len(stock)),
	}

	for _, o := range orders {
		a.TotalRevenue += o.StoreTotal
		a.OrdersByStatus[o.Status]++
	}
	if a.TotalOrders > 0 {
		a.AverageOrderValue = a.TotalRevenue / float64(a.TotalOrders)
	}

	a.RecentOrders = orders
	if len(a.RecentOrders) > recentOrdersLimit {
		a.RecentOrders = a.RecentOrders[:recentOrdersLimit]
	}

	// Every product the store owns gets an entry, sold or not, with its
	// live stock count.
	for productID, inStock := range stock {
		a.ProductPerformance[productID] = ProductPerformance{InStock: inStock}
	}
	for _, o := range orders {
		seen := make(map[uuid.UUID]bool, len(o.Items))
		for _, item := range o.Items {
			perf := a.ProductPerformance[item.ProductID]
			if !seen[item.ProductID] {
				perf.TotalOrders++
				seen[item.ProductID] = true
			}
			perf.TotalQuantity += item.Quantity
			perf.TotalRevenue += item.UnitPrice * float64(item.Quantity)
			a.ProductPerformance[item.ProductID] = perf
		}
	}

	a.TimeBasedAnalysis = buildTimeBuckets(orders, now)

	return a
}

func buildTimeBuckets(orders []SellerOrder, now time.Time) TimeBasedAnalysis {
	loc := now.Location()

	daily := make([]TimeBucket, dailyWindowDays)
	dayIndex := make(map[string]int, dailyWindowDays)
	for i := 0; i < dailyWindowDays; i++ {
		day := now.AddDate(0, 0, i-(dailyWindowDays-1)).In(loc).Format(dayFormat)
		daily[i] = TimeBucket{Period: day}
		dayIndex[day] = i
	}

	// Months are anchored to the first of the month before stepping back,
	// so a late-month now cannot normalize into a duplicate bucket.
	monthly := make([]TimeBucket, monthlyWindowSize)
	monthIndex := make(map[string]int, monthlyWindowSize)
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	for i := 0; i < monthlyWindowSize; i++ {
		month := firstOfMonth.AddDate(0, i-(monthlyWindowSize-1), 0).Format(monthFormat)
		monthly[i] = TimeBucket{Period: month}
		monthIndex[month] = i
	}

	for _, o := range orders {
		created := o.CreatedAt.In(loc)

		if i, ok := dayIndex[created.Format(dayFormat)]; ok {
			daily[i].Orders++
			daily[i].Revenue += o.StoreTotal
		}
		if i, ok := monthIndex[created.Format(monthFormat)]; ok {
			monthly[i].Orders++
			monthly[i].Revenue += o.StoreTotal
		}
	}

	return TimeBasedAnalysis{Daily: daily, Monthly: monthly}
}
