package suborder

import (
	"fmt"
	"net/url"
	"strings"
)

// carrierTrackingURLs 快递公司物流查询地址
// 未收录的快递公司不返回链接
var carrierTrackingURLs = map[string]string{
	"SF":   "https://www.sf-express.com/chn/sc/waybill/waybill-detail/%s",
	"STO":  "https://www.sto.cn/pc/service-page/%s",
	"YD":   "https://www.yundaex.com/cn/chaxun.php?nu=%s",
	"ZTO":  "https://www.zto.com/?num=%s",
	"YTO":  "https://www.yto.net.cn/gw/service/waybillquery.html?waybillNo=%s",
	"EMS":  "https://www.ems.com.cn/queryList?mailNum=%s",
	"JD":   "https://www.jdl.com/orderSearch/?waybillCodes=%s",
	"DBL":  "https://www.deppon.com/gwapi/trackingsearch?nu=%s",
	"JTSD": "https://www.jtexpress.cn/index/query/gzquery.html?bills=%s",
	"HTKY": "https://www.800bestex.com/Bill/Track?billCodes=%s",
}

// TrackingURL 根据快递公司编码和运单号生成查询链接
func TrackingURL(carrierCode, trackingNo string) (string, bool) {
	tmpl, ok := carrierTrackingURLs[strings.ToUpper(strings.TrimSpace(carrierCode))]
	trackingNo = strings.TrimSpace(trackingNo)
	if !ok || trackingNo == "" {
		return "", false
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(trackingNo)), true
}

// KnownCarrier 是否为已收录的快递公司
func KnownCarrier(carrierCode string) bool {
	_, ok := carrierTrackingURLs[strings.ToUpper(strings.TrimSpace(carrierCode))]
	return ok
}
